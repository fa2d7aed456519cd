package embed

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// SpaceConfig binds one vector space to an embedding model and task type.
type SpaceConfig struct {
	Model    string
	TaskType genai.TaskType
}

// DefaultSpaces returns the standard model bindings: the search space is
// optimized for retrieval queries, the clustering space for separability.
func DefaultSpaces() map[Space]SpaceConfig {
	return map[Space]SpaceConfig{
		SpaceSearch:     {Model: "text-embedding-004", TaskType: genai.TaskTypeRetrievalDocument},
		SpaceClustering: {Model: "text-embedding-004", TaskType: genai.TaskTypeClustering},
	}
}

// Registry owns the embedding client and hands out per-space models. The
// client is created lazily on first use and cached for the registry's
// lifetime; Release frees it at run end to bound memory.
type Registry struct {
	apiKey string
	spaces map[Space]SpaceConfig
	log    *logrus.Entry

	mu     sync.Mutex
	client *genai.Client
	dims   map[Space]int
}

// NewRegistry creates a registry for the given API key and space bindings.
// Passing nil spaces selects DefaultSpaces.
func NewRegistry(apiKey string, spaces map[Space]SpaceConfig, log *logrus.Entry) *Registry {
	if spaces == nil {
		spaces = DefaultSpaces()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{apiKey: apiKey, spaces: spaces, log: log, dims: map[Space]int{}}
}

func (r *Registry) acquire(ctx context.Context) (*genai.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}
	if r.apiKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(r.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	r.log.Info("embedding client initialized")
	r.client = client
	return client, nil
}

// Release closes the cached client. Safe to call multiple times; the next
// Embed re-creates the client.
func (r *Registry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		_ = r.client.Close()
		r.client = nil
		r.log.Info("embedding client released")
	}
}

// Embed encodes the texts in the given space. The whole batch is embedded in
// one call when possible; on a batch-level error every text is retried
// individually so a single bad input does not poison the rest.
func (r *Registry) Embed(ctx context.Context, texts []string, space Space) ([][]float32, []int, error) {
	if len(texts) == 0 {
		return nil, nil, nil
	}
	cfg, ok := r.spaces[space]
	if !ok {
		return nil, nil, fmt.Errorf("unknown embedding space %q", space)
	}
	client, err := r.acquire(ctx)
	if err != nil {
		return nil, nil, err
	}

	em := client.EmbeddingModel(cfg.Model)
	em.TaskType = cfg.TaskType

	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}
	res, err := em.BatchEmbedContents(ctx, batch)
	if err == nil && len(res.Embeddings) == len(texts) {
		vectors := make([][]float32, len(texts))
		for i, e := range res.Embeddings {
			vectors[i] = e.Values
			r.rememberDim(space, len(e.Values))
		}
		return vectors, nil, nil
	}
	if err != nil {
		r.log.WithError(err).WithField("space", space).
			Warn("batch embedding failed, retrying texts individually")
	}

	vectors := make([][]float32, 0, len(texts))
	var failed []int
	for i, text := range texts {
		single, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil || single.Embedding == nil {
			r.log.WithError(err).WithFields(logrus.Fields{
				"space": space,
				"index": i,
			}).Warn("embedding failed for one text, excluding it from the run")
			failed = append(failed, i)
			vectors = append(vectors, nil)
			continue
		}
		vectors = append(vectors, single.Embedding.Values)
		r.rememberDim(space, len(single.Embedding.Values))
	}
	return vectors, failed, nil
}

// Dimension reports the vector size of the space, probing the model once if
// no vector has been produced yet.
func (r *Registry) Dimension(ctx context.Context, space Space) (int, error) {
	r.mu.Lock()
	if dim, ok := r.dims[space]; ok {
		r.mu.Unlock()
		return dim, nil
	}
	r.mu.Unlock()

	vectors, _, err := r.Embed(ctx, []string{"dimension probe"}, space)
	if err != nil {
		return 0, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return 0, fmt.Errorf("embedding model returned no vector for space %q", space)
	}
	return len(vectors[0]), nil
}

func (r *Registry) rememberDim(space Space, dim int) {
	if dim == 0 {
		return
	}
	r.mu.Lock()
	r.dims[space] = dim
	r.mu.Unlock()
}
