package pipeline

import (
	"context"
	"fmt"

	"github.com/mikhail/topic-modeler/internal/progress"
)

// RunClustering re-runs only the clustering, titling and persistence steps
// on vectors already indexed in the clustering collection. Fetching and
// embedding are marked skipped; this is the cheap path for retuning
// clustering settings without paying for embeddings again.
func (p *Pipeline) RunClustering(ctx context.Context) (*Report, error) {
	p.tracker.Start(ctx, p.settings)
	if p.opts.Release != nil {
		defer p.opts.Release()
	}

	rep := newReport(p.tracker.RunID())
	err := p.runClustering(ctx, rep)
	p.finish(ctx, rep, err)
	return rep, err
}

func (p *Pipeline) runClustering(ctx context.Context, rep *Report) error {
	for _, stepID := range []string{"fetch_posts", "search_embeddings", "clustering_embeddings", "vector_indexing"} {
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
		return fmt.Errorf("no indexed vectors in %s, run the full pipeline first", CollectionClustering)
	}

	docs := indexedDocs(points)
	rep.PostsUsable = len(docs)
	p.log.WithField("docs", len(docs)).Info("reclustering indexed vectors")
	return p.clusterAndPersist(ctx, docs, rep)
}
