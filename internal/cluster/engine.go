// Package cluster groups post vectors into topics. The engine projects the
// high-dimensional clustering embeddings onto a low-dimensional space via a
// neighborhood-graph spectral embedding, then runs density-based clustering
// there. Posts in no dense region are assigned the noise label.
package cluster

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

// Noise is the assignment label for posts that belong to no topic.
const Noise = -1

// Doc is one post entering clustering.
type Doc struct {
	PostID int64
	Text   string
	Vector []float32
}

// Topic is one discovered cluster with its derived summary material.
type Topic struct {
	ID          int
	Size        int
	Keywords    []string
	SampleTexts []string
	PostIDs     []int64
	Centroid    []float64
}

// Result holds the full clustering outcome. Assignments covers every input
// post, mapping it to a topic id or Noise.
type Result struct {
	Topics      []Topic
	Assignments map[int64]int
	NoiseCount  int
}

// Params controls the engine. All values arrive pre-clamped from settings.
type Params struct {
	MinClusterSize int
	MinSamples     int
	Neighbors      int
	Components     int
	MaxTopics      int
	SampleCount    int
	Seed           int64
}

// Engine runs projection, density clustering and topic summarization.
type Engine struct {
	params Params
	log    *logrus.Entry
}

func New(params Params, log *logrus.Entry) *Engine {
	if params.MinClusterSize < 2 {
		params.MinClusterSize = 2
	}
	if params.MinSamples < 1 {
		params.MinSamples = params.MinClusterSize
	}
	if params.Neighbors < 2 {
		params.Neighbors = 15
	}
	if params.Components < 2 {
		params.Components = 5
	}
	if params.SampleCount < 1 {
		params.SampleCount = 3
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{params: params, log: log}
}

// Fit clusters the documents. It never fails on "no structure found": an
// all-noise outcome is a valid result, not an error.
func (e *Engine) Fit(docs []Doc) (*Result, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents to cluster")
	}

	res := &Result{Assignments: make(map[int64]int, len(docs))}
	if len(docs) < e.params.MinClusterSize {
		for _, d := range docs {
			res.Assignments[d.PostID] = Noise
		}
		res.NoiseCount = len(docs)
		e.log.WithField("docs", len(docs)).Warn("too few documents, all marked noise")
		return res, nil
	}

	vectors := make([][]float64, len(docs))
	for i, d := range docs {
		vectors[i] = normalize(d.Vector)
	}

	points := vectors
	if len(vectors[0]) > e.params.Components && len(docs) > e.params.Components+1 {
		points = project(vectors, e.params.Neighbors, e.params.Components, e.params.Seed)
	}

	labels := densityCluster(points, e.params.MinSamples, e.params.MinClusterSize)
	labels = mergeToLimit(points, labels, e.params.MaxTopics)

	byLabel := map[int][]int{}
	for i, lbl := range labels {
		if lbl == Noise {
			res.Assignments[docs[i].PostID] = Noise
			res.NoiseCount++
			continue
		}
		byLabel[lbl] = append(byLabel[lbl], i)
	}

	// order topics by size, largest first, and renumber from zero
	order := make([]int, 0, len(byLabel))
	for lbl := range byLabel {
		order = append(order, lbl)
	}
	sort.Slice(order, func(a, b int) bool {
		if len(byLabel[order[a]]) != len(byLabel[order[b]]) {
			return len(byLabel[order[a]]) > len(byLabel[order[b]])
		}
		return order[a] < order[b]
	})

	idf := corpusIDF(docs)
	for topicID, lbl := range order {
		members := byLabel[lbl]
		topic := Topic{
			ID:       topicID,
			Size:     len(members),
			Centroid: centroid(vectors, members),
		}
		texts := make([]string, 0, len(members))
		for _, i := range members {
			topic.PostIDs = append(topic.PostIDs, docs[i].PostID)
			texts = append(texts, docs[i].Text)
			res.Assignments[docs[i].PostID] = topicID
		}
		topic.Keywords = topKeywords(texts, idf, 10)
		topic.SampleTexts = sampleTexts(texts, e.params.SampleCount)
		res.Topics = append(res.Topics, topic)
	}

	e.log.WithFields(logrus.Fields{
		"docs":   len(docs),
		"topics": len(res.Topics),
		"noise":  res.NoiseCount,
	}).Info("clustering finished")
	return res, nil
}

func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i, x := range v {
		out[i] = float64(x) / norm
	}
	return out
}

func centroid(vectors [][]float64, members []int) []float64 {
	if len(members) == 0 {
		return nil
	}
	out := make([]float64, len(vectors[members[0]]))
	for _, i := range members {
		for j, x := range vectors[i] {
			out[j] += x
		}
	}
	for j := range out {
		out[j] /= float64(len(members))
	}
	return out
}

// sampleTexts picks a few representative texts, preferring mid-length ones
// over very short or very long posts.
func sampleTexts(texts []string, n int) []string {
	if len(texts) <= n {
		out := make([]string, len(texts))
		copy(out, texts)
		return out
	}
	idx := make([]int, len(texts))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return len(texts[idx[a]]) > len(texts[idx[b]]) })
	start := len(idx) / 4
	if start+n > len(idx) {
		start = len(idx) - n
	}
	mid := idx[start : start+n]
	sort.Ints(mid)
	out := make([]string, 0, n)
	for _, i := range mid {
		out = append(out, texts[i])
	}
	return out
}
