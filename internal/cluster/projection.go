package cluster

import (
	"math"
	"math/rand"
	"sort"
)

const powerIterations = 60

// project embeds the vectors into a low-dimensional space that preserves
// neighborhood structure: it builds a symmetric k-nearest-neighbor
// similarity graph and extracts the leading non-trivial eigenvectors of its
// random-walk matrix by seeded power iteration. Coordinates are deterministic
// for a fixed seed.
func project(vectors [][]float64, k, components int, seed int64) [][]float64 {
	n := len(vectors)
	if k >= n {
		k = n - 1
	}
	if components >= n {
		components = n - 1
	}

	adj := knnGraph(vectors, k)

	// row-normalize into random-walk transition weights
	degree := make([]float64, n)
	for i, row := range adj {
		for _, e := range row {
			degree[i] += e.weight
		}
		if degree[i] == 0 {
			degree[i] = 1
		}
	}

	rng := rand.New(rand.NewSource(seed))
	basis := make([][]float64, 0, components+1)

	// the constant vector is the trivial leading eigenvector; deflating
	// against it first leaves only the structure-bearing ones
	constant := make([]float64, n)
	for i := range constant {
		constant[i] = 1 / math.Sqrt(float64(n))
	}
	basis = append(basis, constant)

	coords := make([][]float64, n)
	for i := range coords {
		coords[i] = make([]float64, components)
	}

	for c := 0; c < components; c++ {
		vec := make([]float64, n)
		for i := range vec {
			vec[i] = rng.NormFloat64()
		}
		orthogonalize(vec, basis)

		next := make([]float64, n)
		for iter := 0; iter < powerIterations; iter++ {
			for i := range next {
				next[i] = 0
			}
			for i, row := range adj {
				for _, e := range row {
					next[i] += e.weight / degree[i] * vec[e.to]
				}
			}
			orthogonalize(next, basis)
			if !renormalize(next) {
				break
			}
			vec, next = next, vec
		}
		basis = append(basis, vec)
		for i := range coords {
			coords[i][c] = vec[i]
		}
	}
	return coords
}

type edge struct {
	to     int
	weight float64
}

// knnGraph connects each point to its k most similar neighbors by cosine
// similarity and symmetrizes the result.
func knnGraph(vectors [][]float64, k int) [][]edge {
	n := len(vectors)
	type scored struct {
		idx int
		sim float64
	}

	neighbors := make([][]scored, n)
	for i := 0; i < n; i++ {
		cand := make([]scored, 0, n-1)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			cand = append(cand, scored{idx: j, sim: dot(vectors[i], vectors[j])})
		}
		sort.Slice(cand, func(a, b int) bool {
			if cand[a].sim != cand[b].sim {
				return cand[a].sim > cand[b].sim
			}
			return cand[a].idx < cand[b].idx
		})
		if len(cand) > k {
			cand = cand[:k]
		}
		neighbors[i] = cand
	}

	weights := make([]map[int]float64, n)
	for i := range weights {
		weights[i] = map[int]float64{}
	}
	for i, cand := range neighbors {
		for _, c := range cand {
			w := c.sim
			if w < 0 {
				w = 0
			}
			if w > weights[i][c.idx] {
				weights[i][c.idx] = w
			}
			if w > weights[c.idx][i] {
				weights[c.idx][i] = w
			}
		}
	}

	adj := make([][]edge, n)
	for i, row := range weights {
		keys := make([]int, 0, len(row))
		for j := range row {
			keys = append(keys, j)
		}
		sort.Ints(keys)
		for _, j := range keys {
			adj[i] = append(adj[i], edge{to: j, weight: row[j]})
		}
	}
	return adj
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func orthogonalize(v []float64, basis [][]float64) {
	for _, b := range basis {
		proj := 0.0
		for i := range v {
			proj += v[i] * b[i]
		}
		for i := range v {
			v[i] -= proj * b[i]
		}
	}
}

// renormalize scales v to unit length; returns false when the vector has
// collapsed to zero and iteration should stop.
func renormalize(v []float64) bool {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm < 1e-12 {
		return false
	}
	for i := range v {
		v[i] /= norm
	}
	return true
}
