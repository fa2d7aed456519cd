package cluster

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobDocs builds tight groups of vectors around orthogonal directions, one
// group per topic, with a little noise.
func blobDocs(perBlob, blobs, dim int, seed int64) []Doc {
	rng := rand.New(rand.NewSource(seed))
	var docs []Doc
	id := int64(1)
	for b := 0; b < blobs; b++ {
		for i := 0; i < perBlob; i++ {
			v := make([]float32, dim)
			for d := range v {
				v[d] = float32(rng.NormFloat64()) * 0.02
			}
			v[b] += 1
			docs = append(docs, Doc{
				PostID: id,
				Text:   fmt.Sprintf("blob %d post number %d body", b, i),
				Vector: v,
			})
			id++
		}
	}
	return docs
}

func testParams() Params {
	return Params{
		MinClusterSize: 3,
		MinSamples:     3,
		Neighbors:      5,
		Components:     4,
		MaxTopics:      15,
		Seed:           42,
	}
}

func TestFit_FindsSeparatedBlobs(t *testing.T) {
	docs := blobDocs(12, 3, 16, 7)
	res, err := New(testParams(), nil).Fit(docs)
	require.NoError(t, err)

	assert.Len(t, res.Topics, 3)
	for _, topic := range res.Topics {
		assert.Equal(t, 12, topic.Size)
		assert.Len(t, topic.PostIDs, 12)
	}
}

func TestFit_AssignmentsCoverEveryPost(t *testing.T) {
	docs := blobDocs(10, 3, 16, 7)
	res, err := New(testParams(), nil).Fit(docs)
	require.NoError(t, err)

	require.Len(t, res.Assignments, len(docs))
	assigned := 0
	for _, d := range docs {
		lbl, ok := res.Assignments[d.PostID]
		require.True(t, ok, "post %d missing from assignments", d.PostID)
		if lbl != Noise {
			assigned++
			assert.Less(t, lbl, len(res.Topics))
		}
	}
	assert.Equal(t, len(docs)-res.NoiseCount, assigned)
}

func TestFit_DeterministicForFixedSeed(t *testing.T) {
	docs := blobDocs(10, 3, 16, 7)
	first, err := New(testParams(), nil).Fit(docs)
	require.NoError(t, err)
	second, err := New(testParams(), nil).Fit(docs)
	require.NoError(t, err)

	assert.Equal(t, first.Assignments, second.Assignments)
	require.Equal(t, len(first.Topics), len(second.Topics))
	for i := range first.Topics {
		assert.Equal(t, first.Topics[i].Keywords, second.Topics[i].Keywords)
	}
}

func TestFit_TooFewDocsAllNoise(t *testing.T) {
	docs := blobDocs(1, 2, 8, 1)
	params := testParams()
	params.MinClusterSize = 5
	res, err := New(params, nil).Fit(docs)
	require.NoError(t, err)

	assert.Empty(t, res.Topics)
	assert.Equal(t, len(docs), res.NoiseCount)
	for _, d := range docs {
		assert.Equal(t, Noise, res.Assignments[d.PostID])
	}
}

func TestFit_EmptyInput(t *testing.T) {
	_, err := New(testParams(), nil).Fit(nil)
	assert.Error(t, err)
}

func TestFit_TopicsOrderedBySize(t *testing.T) {
	docs := append(blobDocs(14, 1, 16, 3), blobDocs(6, 1, 16, 4)...)
	// second blob must not collide with the first in id or direction
	for i := 14; i < len(docs); i++ {
		docs[i].PostID += 100
		docs[i].Vector[0], docs[i].Vector[5] = docs[i].Vector[5], docs[i].Vector[0]+1
	}
	res, err := New(testParams(), nil).Fit(docs)
	require.NoError(t, err)

	require.Len(t, res.Topics, 2)
	assert.Equal(t, 0, res.Topics[0].ID)
	assert.GreaterOrEqual(t, res.Topics[0].Size, res.Topics[1].Size)
}

func TestMergeToLimit(t *testing.T) {
	// four one-dimensional clusters at 0, 1, 10, 11
	points := [][]float64{{0}, {0.1}, {1}, {1.1}, {10}, {10.1}, {11}, {11.1}}
	labels := []int{0, 0, 1, 1, 2, 2, 3, 3}

	merged := mergeToLimit(points, labels, 2)
	assert.Equal(t, merged[0], merged[2], "nearby clusters 0 and 1 merge")
	assert.Equal(t, merged[4], merged[6], "nearby clusters 2 and 3 merge")
	assert.NotEqual(t, merged[0], merged[4])
}

func TestMergeToLimit_KeepsNoise(t *testing.T) {
	points := [][]float64{{0}, {1}, {50}}
	labels := []int{0, 1, Noise}
	merged := mergeToLimit(points, labels, 1)
	assert.Equal(t, Noise, merged[2])
	assert.Equal(t, merged[0], merged[1])
}

func TestSampleTexts(t *testing.T) {
	texts := []string{"aa", "bbbbbbbbbb", "cccccc", "dddddddd", "ee"}
	got := sampleTexts(texts, 3)
	assert.Len(t, got, 3)

	short := []string{"one", "two"}
	assert.Equal(t, short, sampleTexts(short, 3))
}

func TestSampleTexts_CountNearLen(t *testing.T) {
	texts := make([]string, 11)
	for i := range texts {
		texts[i] = strings.Repeat("т", i+1)
	}
	for n := 1; n <= 10; n++ {
		got := sampleTexts(texts, n)
		assert.Len(t, got, n, "n=%d", n)
	}
}
