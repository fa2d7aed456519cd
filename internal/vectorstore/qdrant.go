// Package vectorstore writes and reads post vectors in Qdrant. The pipeline
// keeps two collections, one per embedding space; points are keyed by post id
// so re-indexing the same posts overwrites instead of duplicating.
package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
)

// Record is one (post, vector) pair destined for a collection.
type Record struct {
	PostID    int64
	Vector    []float32
	Text      string
	Timestamp time.Time
}

// Point is one record read back from a collection.
type Point struct {
	PostID int64
	Vector []float32
	Text   string
}

// UpsertStats summarizes one batched upsert.
type UpsertStats struct {
	Points  int
	Batches int
}

// qdrantAPI is the slice of the qdrant client the indexer uses; tests
// substitute a fake.
type qdrantAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Scroll(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
}

// Index is the Qdrant-backed vector indexer.
type Index struct {
	api       qdrantAPI
	batchSize int
	log       *logrus.Entry
}

// Config holds connection parameters for the Qdrant instance.
type Config struct {
	Host      string
	Port      int
	BatchSize int
}

// New connects to Qdrant over gRPC.
func New(cfg Config, log *logrus.Entry) (*Index, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: cfg.Host, Port: cfg.Port})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return newIndex(client, cfg.BatchSize, log), nil
}

func newIndex(api qdrantAPI, batchSize int, log *logrus.Entry) *Index {
	if batchSize <= 0 {
		batchSize = 50
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Index{api: api, batchSize: batchSize, log: log}
}

// SetBatchSize overrides the per-call batch size (settings-controlled).
func (ix *Index) SetBatchSize(n int) {
	if n > 0 {
		ix.batchSize = n
	}
}

// EnsureCollection creates the collection with cosine distance if it does not
// exist. An existing collection with a different dimensionality is dropped
// and recreated, since its vectors cannot be compared with the new ones.
func (ix *Index) EnsureCollection(ctx context.Context, name string, dim int) error {
	exists, err := ix.api.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if exists {
		info, err := ix.api.GetCollectionInfo(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to inspect collection %s: %w", name, err)
		}
		existing := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
		if existing == dim {
			return nil
		}
		ix.log.WithFields(logrus.Fields{
			"collection": name,
			"expected":   dim,
			"found":      existing,
		}).Warn("collection dimensionality mismatch, recreating")
		if err := ix.api.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("failed to drop collection %s: %w", name, err)
		}
	}
	err = ix.api.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	ix.log.WithFields(logrus.Fields{"collection": name, "dim": dim}).Info("collection created")
	return nil
}

// Upsert writes the records in batches. Point id equals the post id, so
// repeating the call for the same posts overwrites their vectors.
// The onBatch hook, when set, runs before each batch; returning an error
// aborts the upsert (used for cancellation checks).
func (ix *Index) Upsert(ctx context.Context, name string, records []Record, onBatch func() error) (UpsertStats, error) {
	stats := UpsertStats{}
	for start := 0; start < len(records); start += ix.batchSize {
		if onBatch != nil {
			if err := onBatch(); err != nil {
				return stats, err
			}
		}
		end := start + ix.batchSize
		if end > len(records) {
			end = len(records)
		}
		points := make([]*qdrant.PointStruct, 0, end-start)
		for _, rec := range records[start:end] {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(rec.PostID)),
				Vectors: qdrant.NewVectors(rec.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"post_id":   rec.PostID,
					"text":      rec.Text,
					"timestamp": rec.Timestamp.UTC().Format(time.RFC3339),
				}),
			})
		}
		_, err := ix.api.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return stats, fmt.Errorf("failed to upsert batch %d into %s: %w", stats.Batches+1, name, err)
		}
		stats.Batches++
		stats.Points += len(points)
	}
	return stats, nil
}

// ScrollAll reads up to limit points with payloads and vectors, paging
// through the collection. Points without the expected payload are skipped.
func (ix *Index) ScrollAll(ctx context.Context, name string, limit int) ([]Point, error) {
	exists, err := ix.api.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if !exists {
		return nil, nil
	}

	var out []Point
	var offset *qdrant.PointId
	var lastID uint64
	havePrev := false
	for len(out) < limit {
		page := uint32(limit - len(out))
		if page > 1000 {
			page = 1000
		}
		points, err := ix.api.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: name,
			Limit:          qdrant.PtrOf(page),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll collection %s: %w", name, err)
		}
		if len(points) == 0 {
			break
		}
		for _, p := range points {
			// The scroll offset is inclusive, so each page after the first
			// starts with the point the previous page ended on.
			if havePrev && p.GetId().GetNum() == lastID {
				continue
			}
			payload := p.GetPayload()
			text := payload["text"].GetStringValue()
			postID := payload["post_id"].GetIntegerValue()
			vector := p.GetVectors().GetVector().GetData()
			if text == "" || len(vector) == 0 {
				continue
			}
			out = append(out, Point{PostID: postID, Text: text, Vector: vector})
		}
		last := points[len(points)-1]
		offset = last.GetId()
		lastID = last.GetId().GetNum()
		havePrev = true
		if len(points) < int(page) {
			break
		}
	}
	return out, nil
}

// Count returns the number of points in the collection, zero if missing.
func (ix *Index) Count(ctx context.Context, name string) (uint64, error) {
	exists, err := ix.api.CollectionExists(ctx, name)
	if err != nil || !exists {
		return 0, err
	}
	return ix.api.Count(ctx, &qdrant.CountPoints{CollectionName: name})
}
