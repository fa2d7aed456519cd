// Package pipeline provides the high-level orchestration for topic modeling:
// fetch posts, embed them into two vector spaces, index the vectors, cluster
// the clustering space into topics, title the topics and persist the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mikhail/topic-modeler/internal/cluster"
	"github.com/mikhail/topic-modeler/internal/db"
	"github.com/mikhail/topic-modeler/internal/embed"
	"github.com/mikhail/topic-modeler/internal/progress"
	"github.com/mikhail/topic-modeler/internal/settings"
	"github.com/mikhail/topic-modeler/internal/titles"
	"github.com/mikhail/topic-modeler/internal/vectorstore"
)

// Collection names for the two vector spaces.
const (
	CollectionSearch     = "posts_search"
	CollectionClustering = "posts_clustering"
)

// embedChunk is how many texts go to the embedding API per request; the
// cancel flag is consulted between chunks.
const embedChunk = 100

// titleWorkers bounds concurrent title generation requests.
const titleWorkers = 4

// ErrCancelled reports that the run stopped because cancellation was
// requested. It is a normal outcome, not a failure.
var ErrCancelled = errors.New("run cancelled")

// PostSource supplies the posts to model.
type PostSource interface {
	FetchPosts(ctx context.Context, limit, daysBack int) ([]db.Post, error)
}

// VectorIndex stores and retrieves post vectors.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	SetBatchSize(n int)
	Upsert(ctx context.Context, name string, records []vectorstore.Record, onBatch func() error) (vectorstore.UpsertStats, error)
	ScrollAll(ctx context.Context, name string, limit int) ([]vectorstore.Point, error)
}

// TitleSource names topics. The second return value reports the source,
// titles.SourceLLM or titles.SourceKeywords.
type TitleSource interface {
	Title(ctx context.Context, topicID int, keywords, samples []string) (string, string)
}

// Persister writes topics and embedding metadata to the database.
type Persister interface {
	SaveTopics(ctx context.Context, topics []db.TopicRecord, log *logrus.Entry) (db.SaveStats, error)
	SaveEmbeddingMetadata(ctx context.Context, recs []db.EmbeddingRecord, log *logrus.Entry) error
}

// Options holds per-run parameters that are not part of the settings file.
type Options struct {
	DaysBack     int
	ArtifactsDir string
	// Release, when set, runs after the pipeline finishes to free model
	// resources.
	Release func()
}

// Pipeline wires the stages together. Construct with New.
type Pipeline struct {
	settings settings.Settings
	tracker  *progress.Tracker
	posts    PostSource
	embedder embed.Embedder
	index    VectorIndex
	titles   TitleSource
	store    Persister
	opts     Options
	log      *logrus.Entry
}

// New assembles a pipeline. All collaborators are required except
// opts.Release.
func New(s settings.Settings, tracker *progress.Tracker, posts PostSource, embedder embed.Embedder,
	index VectorIndex, titleSrc TitleSource, store Persister, opts Options, log *logrus.Entry) *Pipeline {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pipeline{
		settings: s,
		tracker:  tracker,
		posts:    posts,
		embedder: embedder,
		index:    index,
		titles:   titleSrc,
		store:    store,
		opts:     opts,
		log:      log,
	}
}

// Run executes the full pipeline. Cancellation requested through the
// progress tracker, or through ctx, stops the run at the next step or batch
// boundary and returns ErrCancelled.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	p.tracker.Start(ctx, p.settings)
	if p.opts.Release != nil {
		defer p.opts.Release()
	}

	rep := newReport(p.tracker.RunID())
	err := p.run(ctx, rep)
	p.finish(ctx, rep, err)
	return rep, err
}

func (p *Pipeline) run(ctx context.Context, rep *Report) error {
	posts, texts, err := p.stepFetch(ctx, rep)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		return p.runFromIndex(ctx, rep)
	}

	searchVecs, err := p.stepEmbed(ctx, "search_embeddings", embed.SpaceSearch, texts, rep)
	if err != nil {
		return err
	}
	clusterVecs, err := p.stepEmbed(ctx, "clustering_embeddings", embed.SpaceClustering, texts, rep)
	if err != nil {
		return err
	}

	if err := p.stepIndex(ctx, posts, texts, searchVecs, clusterVecs, rep); err != nil {
		return err
	}

	docs := make([]cluster.Doc, 0, len(posts))
	for i, post := range posts {
		if clusterVecs[i] == nil {
			continue
		}
		docs = append(docs, cluster.Doc{PostID: post.ID, Text: texts[i], Vector: clusterVecs[i]})
	}
	return p.clusterAndPersist(ctx, docs, rep)
}

// runFromIndex handles a fetch that produced no new posts: the embedding and
// indexing steps are skipped and clustering runs on whatever the clustering
// collection already holds. With an empty collection the remaining steps are
// skipped too and the run completes with nothing to do.
func (p *Pipeline) runFromIndex(ctx context.Context, rep *Report) error {
	p.log.Warn("no new posts to model, reusing indexed vectors")
	for _, stepID := range []string{"search_embeddings", "clustering_embeddings", "vector_indexing"} {
		p.tracker.UpdateStep(ctx, stepID, progress.StepSkipped, nil)
	}
	if err := p.checkCancel(ctx); err != nil {
		return err
	}

	points, err := p.index.ScrollAll(ctx, CollectionClustering, p.settings.MaxPostsForClustering)
	if err != nil {
		return fmt.Errorf("failed to load vectors from %s: %w", CollectionClustering, err)
	}
	if len(points) == 0 {
		for _, stepID := range []string{"clustering", "title_generation", "persistence"} {
			p.tracker.UpdateStep(ctx, stepID, progress.StepSkipped, nil)
		}
		return nil
	}

	docs := indexedDocs(points)
	rep.PostsUsable = len(docs)
	return p.clusterAndPersist(ctx, docs, rep)
}

// clusterAndPersist covers the clustering, title generation and persistence
// steps. It is shared with recluster-only runs.
func (p *Pipeline) clusterAndPersist(ctx context.Context, docs []cluster.Doc, rep *Report) error {
	result, err := p.stepCluster(ctx, docs, rep)
	if err != nil {
		return err
	}
	titled, err := p.stepTitles(ctx, result.Topics, rep)
	if err != nil {
		return err
	}
	return p.stepPersist(ctx, docs, result, titled, rep)
}

func (p *Pipeline) checkCancel(ctx context.Context) error {
	if ctx.Err() != nil || p.tracker.IsCancelRequested(ctx) {
		return ErrCancelled
	}
	return nil
}

func (p *Pipeline) stepFetch(ctx context.Context, rep *Report) ([]db.Post, []string, error) {
	if err := p.checkCancel(ctx); err != nil {
		return nil, nil, err
	}
	p.tracker.UpdateStep(ctx, "fetch_posts", progress.StepRunning, nil)

	fetched, err := p.posts.FetchPosts(ctx, p.settings.MaxPostsForClustering, p.opts.DaysBack)
	if err != nil {
		p.tracker.UpdateStep(ctx, "fetch_posts", progress.StepFailed, map[string]any{"error": err.Error()})
		return nil, nil, fmt.Errorf("failed to fetch posts: %w", err)
	}

	posts := make([]db.Post, 0, len(fetched))
	texts := make([]string, 0, len(fetched))
	skipped := 0
	for _, post := range fetched {
		text, err := embed.PrepareText(post.Text)
		if err != nil {
			skipped++
			continue
		}
		posts = append(posts, post)
		texts = append(texts, text)
	}

	rep.PostsFetched = len(fetched)
	rep.PostsUsable = len(posts)
	p.tracker.UpdateStep(ctx, "fetch_posts", progress.StepDone, map[string]any{
		"fetched": len(fetched),
		"usable":  len(posts),
		"skipped": skipped,
	})
	p.tracker.UpdateMetrics(ctx, map[string]any{"posts_fetched": len(fetched), "posts_usable": len(posts)})
	return posts, texts, nil
}

// stepEmbed produces one vector per text, nil where embedding failed.
func (p *Pipeline) stepEmbed(ctx context.Context, stepID string, space embed.Space, texts []string, rep *Report) ([][]float32, error) {
	if err := p.checkCancel(ctx); err != nil {
		return nil, err
	}
	p.tracker.UpdateStep(ctx, stepID, progress.StepRunning, map[string]any{"total": len(texts)})

	vectors := make([][]float32, len(texts))
	failed := 0
	for start := 0; start < len(texts); start += embedChunk {
		if err := p.checkCancel(ctx); err != nil {
			return nil, err
		}
		end := start + embedChunk
		if end > len(texts) {
			end = len(texts)
		}
		chunk, failedIdx, err := p.embedder.Embed(ctx, texts[start:end], space)
		if err != nil {
			p.tracker.UpdateStep(ctx, stepID, progress.StepFailed, map[string]any{"error": err.Error()})
			return nil, fmt.Errorf("failed to embed %s chunk at %d: %w", space, start, err)
		}
		copy(vectors[start:end], chunk)
		for _, i := range failedIdx {
			vectors[start+i] = nil
			failed++
		}
		p.tracker.UpdateStep(ctx, stepID, progress.StepRunning, map[string]any{"embedded": end, "failed": failed})
	}

	rep.EmbedFailures += failed
	p.tracker.UpdateStep(ctx, stepID, progress.StepDone, map[string]any{"embedded": len(texts) - failed, "failed": failed})
	return vectors, nil
}

func (p *Pipeline) stepIndex(ctx context.Context, posts []db.Post, texts []string, searchVecs, clusterVecs [][]float32, rep *Report) error {
	if err := p.checkCancel(ctx); err != nil {
		return err
	}
	p.tracker.UpdateStep(ctx, "vector_indexing", progress.StepRunning, nil)
	p.index.SetBatchSize(p.settings.QdrantBatchSize)

	spaces := []struct {
		collection string
		space      embed.Space
		vectors    [][]float32
	}{
		{CollectionSearch, embed.SpaceSearch, searchVecs},
		{CollectionClustering, embed.SpaceClustering, clusterVecs},
	}

	var metas []db.EmbeddingRecord
	totalPoints := 0
	for _, sp := range spaces {
		records := make([]vectorstore.Record, 0, len(posts))
		dim := 0
		for i, post := range posts {
			if sp.vectors[i] == nil {
				continue
			}
			dim = len(sp.vectors[i])
			records = append(records, vectorstore.Record{
				PostID:    post.ID,
				Vector:    sp.vectors[i],
				Text:      texts[i],
				Timestamp: post.Date,
			})
		}
		if len(records) == 0 {
			continue
		}
		if err := p.index.EnsureCollection(ctx, sp.collection, dim); err != nil {
			p.tracker.UpdateStep(ctx, "vector_indexing", progress.StepFailed, map[string]any{"error": err.Error()})
			return err
		}
		stats, err := p.index.Upsert(ctx, sp.collection, records, func() error { return p.checkCancel(ctx) })
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return err
			}
			p.tracker.UpdateStep(ctx, "vector_indexing", progress.StepFailed, map[string]any{"error": err.Error()})
			return fmt.Errorf("failed to index %s: %w", sp.collection, err)
		}
		totalPoints += stats.Points
		model := embed.DefaultSpaces()[sp.space].Model
		for _, rec := range records {
			metas = append(metas, db.EmbeddingRecord{
				MessageID:  rec.PostID,
				Model:      model,
				VectorID:   rec.PostID,
				Dimension:  dim,
				Collection: sp.collection,
			})
		}
	}

	rep.PointsIndexed = totalPoints
	rep.embeddingMetas = metas
	p.tracker.UpdateStep(ctx, "vector_indexing", progress.StepDone, map[string]any{"points": totalPoints})
	return nil
}

func (p *Pipeline) stepCluster(ctx context.Context, docs []cluster.Doc, rep *Report) (*cluster.Result, error) {
	if err := p.checkCancel(ctx); err != nil {
		return nil, err
	}
	p.tracker.UpdateStep(ctx, "clustering", progress.StepRunning, map[string]any{"docs": len(docs)})

	maxTopics := 0
	if p.settings.AutoMergeTopics {
		maxTopics = p.settings.MaxTopics
	}
	engine := cluster.New(cluster.Params{
		MinClusterSize: p.settings.MinClusterSize,
		MinSamples:     p.settings.MinSamples,
		Neighbors:      p.settings.NeighborCount,
		Components:     p.settings.ReducedDim,
		MaxTopics:      maxTopics,
		SampleCount:    p.settings.NumSampleTexts,
		Seed:           p.settings.RandomSeed,
	}, p.log)

	result, err := engine.Fit(docs)
	if err != nil {
		p.tracker.UpdateStep(ctx, "clustering", progress.StepFailed, map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("clustering failed: %w", err)
	}

	rep.Topics = len(result.Topics)
	rep.NoisePosts = result.NoiseCount
	p.tracker.UpdateStep(ctx, "clustering", progress.StepDone, map[string]any{
		"topics": len(result.Topics),
		"noise":  result.NoiseCount,
	})
	p.tracker.UpdateMetrics(ctx, map[string]any{"topics": len(result.Topics), "noise_posts": result.NoiseCount})
	return result, nil
}

// titledTopic pairs a topic with its generated title.
type titledTopic struct {
	topic  cluster.Topic
	title  string
	source string
}

func (p *Pipeline) stepTitles(ctx context.Context, topics []cluster.Topic, rep *Report) ([]titledTopic, error) {
	if err := p.checkCancel(ctx); err != nil {
		return nil, err
	}
	p.tracker.UpdateStep(ctx, "title_generation", progress.StepRunning, map[string]any{"topics": len(topics)})

	titled := make([]titledTopic, len(topics))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(titleWorkers)
	for i, topic := range topics {
		g.Go(func() error {
			var title, source string
			if p.settings.UseLLMForTitles && p.titles != nil {
				title, source = p.titles.Title(gctx, topic.ID, topic.Keywords, topic.SampleTexts)
			} else {
				title, source = titles.KeywordTitle(topic.Keywords, topic.ID), titles.SourceKeywords
			}
			titled[i] = titledTopic{topic: topic, title: title, source: source}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, tt := range titled {
		if tt.source == titles.SourceLLM {
			rep.TitlesLLM++
		} else {
			rep.TitlesKeywords++
		}
	}
	p.tracker.UpdateStep(ctx, "title_generation", progress.StepDone, map[string]any{
		"generated": rep.TitlesLLM,
		"fallback":  rep.TitlesKeywords,
	})
	return titled, nil
}

func (p *Pipeline) stepPersist(ctx context.Context, docs []cluster.Doc, result *cluster.Result, titled []titledTopic, rep *Report) error {
	if err := p.checkCancel(ctx); err != nil {
		return err
	}
	p.tracker.UpdateStep(ctx, "persistence", progress.StepRunning, nil)

	vectorByPost := make(map[int64][]float32, len(docs))
	for _, d := range docs {
		vectorByPost[d.PostID] = d.Vector
	}

	records := make([]db.TopicRecord, 0, len(titled))
	for _, tt := range titled {
		rec := db.TopicRecord{
			ClusterID:   uuid.New(),
			Title:       tt.title,
			TitleSource: tt.source,
			Summary:     strings.Join(tt.topic.Keywords, ", "),
			Keywords:    tt.topic.Keywords,
			Size:        tt.topic.Size,
		}
		best, bestSim := -1, -1.0
		for _, postID := range tt.topic.PostIDs {
			sim := centroidSimilarity(vectorByPost[postID], tt.topic.Centroid)
			rec.Members = append(rec.Members, db.TopicPost{PostID: postID, Similarity: sim})
			if sim > bestSim {
				bestSim = sim
				best = len(rec.Members) - 1
			}
		}
		if best >= 0 {
			rec.Members[best].IsPrimary = true
		}
		records = append(records, rec)
	}

	stats, err := p.store.SaveTopics(ctx, records, p.log)
	if err != nil {
		p.tracker.UpdateStep(ctx, "persistence", progress.StepFailed, map[string]any{"error": err.Error()})
		return fmt.Errorf("failed to persist topics: %w", err)
	}
	if len(rep.embeddingMetas) > 0 {
		if err := p.store.SaveEmbeddingMetadata(ctx, rep.embeddingMetas, p.log); err != nil {
			p.log.WithError(err).Warn("failed to save embedding metadata")
		}
	}

	rep.Save = stats
	p.tracker.UpdateStep(ctx, "persistence", progress.StepDone, map[string]any{
		"topics_saved": stats.TopicsSaved,
		"posts_linked": stats.PostsLinked,
		"links_failed": stats.LinksFailed,
	})
	return nil
}

func (p *Pipeline) finish(ctx context.Context, rep *Report, err error) {
	now := time.Now().UTC()
	rep.FinishedAt = &now
	switch {
	case errors.Is(err, ErrCancelled):
		rep.Status = progress.StatusCancelled
		p.tracker.MarkCancelled(ctx, map[string]any{
			"posts":  rep.PostsUsable,
			"topics": rep.Topics,
		})
	case err != nil:
		rep.Status = progress.StatusFailed
		rep.Error = err.Error()
		p.tracker.Finish(ctx, progress.StatusFailed, nil, err.Error())
	default:
		rep.Status = progress.StatusCompleted
		p.tracker.Finish(ctx, progress.StatusCompleted, map[string]any{
			"topics":      rep.Topics,
			"noise_posts": rep.NoisePosts,
			"posts":       rep.PostsUsable,
		}, "")
	}
	if p.opts.ArtifactsDir != "" {
		if werr := rep.write(p.opts.ArtifactsDir); werr != nil {
			p.log.WithError(werr).Warn("failed to write run report")
		}
	}
}

func indexedDocs(points []vectorstore.Point) []cluster.Doc {
	docs := make([]cluster.Doc, 0, len(points))
	for _, pt := range points {
		docs = append(docs, cluster.Doc{PostID: pt.PostID, Text: pt.Text, Vector: pt.Vector})
	}
	return docs
}

// centroidSimilarity is the cosine similarity between a raw vector and a
// cluster centroid.
func centroidSimilarity(vec []float32, centroid []float64) float64 {
	if len(vec) == 0 || len(vec) != len(centroid) {
		return 0
	}
	var dot, nv, nc float64
	for i, x := range vec {
		dot += float64(x) * centroid[i]
		nv += float64(x) * float64(x)
		nc += centroid[i] * centroid[i]
	}
	if nv == 0 || nc == 0 {
		return 0
	}
	return dot / (math.Sqrt(nv) * math.Sqrt(nc))
}
