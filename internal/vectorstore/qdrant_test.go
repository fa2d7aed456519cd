package vectorstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	collections map[string]int
	points      map[string]map[uint64]*qdrant.PointStruct
	upsertCalls int
	failUpserts bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		collections: map[string]int{},
		points:      map[string]map[uint64]*qdrant.PointStruct{},
	}
}

func (f *fakeAPI) CollectionExists(_ context.Context, name string) (bool, error) {
	_, ok := f.collections[name]
	return ok, nil
}

func (f *fakeAPI) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.collections[req.CollectionName] = int(req.VectorsConfig.GetParams().GetSize())
	f.points[req.CollectionName] = map[uint64]*qdrant.PointStruct{}
	return nil
}

func (f *fakeAPI) DeleteCollection(_ context.Context, name string) error {
	delete(f.collections, name)
	delete(f.points, name)
	return nil
}

func (f *fakeAPI) GetCollectionInfo(_ context.Context, name string) (*qdrant.CollectionInfo, error) {
	dim, ok := f.collections[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return &qdrant.CollectionInfo{
		Config: &qdrant.CollectionConfig{
			Params: &qdrant.CollectionParams{
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: qdrant.Distance_Cosine,
				}),
			},
		},
	}, nil
}

func (f *fakeAPI) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	if f.failUpserts {
		return nil, errors.New("upsert refused")
	}
	f.upsertCalls++
	byID := f.points[req.CollectionName]
	if byID == nil {
		byID = map[uint64]*qdrant.PointStruct{}
		f.points[req.CollectionName] = byID
	}
	for _, p := range req.Points {
		byID[p.Id.GetNum()] = p
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeAPI) Scroll(_ context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error) {
	var ids []uint64
	for id := range f.points[req.CollectionName] {
		ids = append(ids, id)
	}
	// deterministic ascending order
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	start := 0
	if req.Offset != nil {
		for i, id := range ids {
			if id >= req.Offset.GetNum() {
				start = i
				break
			}
		}
	}
	limit := len(ids)
	if req.Limit != nil && int(*req.Limit) < limit-start {
		limit = start + int(*req.Limit)
	}
	var out []*qdrant.RetrievedPoint
	for _, id := range ids[start:limit] {
		p := f.points[req.CollectionName][id]
		out = append(out, &qdrant.RetrievedPoint{
			Id:      p.Id,
			Payload: p.Payload,
			Vectors: &qdrant.VectorsOutput{
				VectorsOptions: &qdrant.VectorsOutput_Vector{
					Vector: &qdrant.VectorOutput{Data: p.Vectors.GetVector().GetData()},
				},
			},
		})
	}
	return out, nil
}

func (f *fakeAPI) Count(_ context.Context, req *qdrant.CountPoints) (uint64, error) {
	return uint64(len(f.points[req.CollectionName])), nil
}

func testRecords(n int) []Record {
	recs := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, Record{
			PostID:    int64(i + 1),
			Vector:    []float32{float32(i), 1},
			Text:      "post text",
			Timestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return recs
}

func TestEnsureCollection_CreatesOnce(t *testing.T) {
	api := newFakeAPI()
	ix := newIndex(api, 10, nil)

	require.NoError(t, ix.EnsureCollection(t.Context(), "posts_search", 768))
	require.NoError(t, ix.EnsureCollection(t.Context(), "posts_search", 768))
	assert.Equal(t, 768, api.collections["posts_search"])
}

func TestEnsureCollection_RecreatesOnDimMismatch(t *testing.T) {
	api := newFakeAPI()
	ix := newIndex(api, 10, nil)

	require.NoError(t, ix.EnsureCollection(t.Context(), "posts_search", 384))
	_, err := ix.Upsert(t.Context(), "posts_search", testRecords(3), nil)
	require.NoError(t, err)

	require.NoError(t, ix.EnsureCollection(t.Context(), "posts_search", 768))
	assert.Equal(t, 768, api.collections["posts_search"])
	assert.Empty(t, api.points["posts_search"], "old vectors must not survive a dimension change")
}

func TestUpsert_BatchesAndOverwrites(t *testing.T) {
	api := newFakeAPI()
	ix := newIndex(api, 20, nil)
	require.NoError(t, ix.EnsureCollection(t.Context(), "posts_search", 2))

	stats, err := ix.Upsert(t.Context(), "posts_search", testRecords(50), nil)
	require.NoError(t, err)
	assert.Equal(t, 50, stats.Points)
	assert.Equal(t, 3, stats.Batches)

	// same posts again: overwritten, not duplicated
	stats, err = ix.Upsert(t.Context(), "posts_search", testRecords(50), nil)
	require.NoError(t, err)
	assert.Equal(t, 50, stats.Points)

	n, err := ix.Count(t.Context(), "posts_search")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), n)
}

func TestUpsert_OnBatchAbort(t *testing.T) {
	api := newFakeAPI()
	ix := newIndex(api, 10, nil)
	require.NoError(t, ix.EnsureCollection(t.Context(), "posts_search", 2))

	calls := 0
	stop := errors.New("stop")
	stats, err := ix.Upsert(t.Context(), "posts_search", testRecords(30), func() error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 10, stats.Points, "only the first batch lands")
}

func TestUpsert_ErrorKeepsPartialStats(t *testing.T) {
	api := newFakeAPI()
	ix := newIndex(api, 10, nil)
	require.NoError(t, ix.EnsureCollection(t.Context(), "posts_search", 2))

	_, err := ix.Upsert(t.Context(), "posts_search", testRecords(5), nil)
	require.NoError(t, err)

	api.failUpserts = true
	stats, err := ix.Upsert(t.Context(), "posts_search", testRecords(5), nil)
	assert.Error(t, err)
	assert.Equal(t, 0, stats.Points)
}

func TestScrollAll_PagesThrough(t *testing.T) {
	api := newFakeAPI()
	ix := newIndex(api, 50, nil)
	require.NoError(t, ix.EnsureCollection(t.Context(), "posts_clustering", 2))
	_, err := ix.Upsert(t.Context(), "posts_clustering", testRecords(7), nil)
	require.NoError(t, err)

	points, err := ix.ScrollAll(t.Context(), "posts_clustering", 100)
	require.NoError(t, err)
	require.Len(t, points, 7)

	seen := map[int64]bool{}
	for _, p := range points {
		assert.False(t, seen[p.PostID], "post %d returned twice", p.PostID)
		seen[p.PostID] = true
		assert.Equal(t, "post text", p.Text)
		assert.Len(t, p.Vector, 2)
	}
}

func TestScrollAll_MissingCollection(t *testing.T) {
	ix := newIndex(newFakeAPI(), 50, nil)
	points, err := ix.ScrollAll(t.Context(), "absent", 100)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestCount_MissingCollection(t *testing.T) {
	ix := newIndex(newFakeAPI(), 50, nil)
	n, err := ix.Count(t.Context(), "absent")
	require.NoError(t, err)
	assert.Zero(t, n)
}
