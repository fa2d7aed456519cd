package cluster

import (
	"math"
	"sort"
)

// densityCluster labels the points with a density-based pass: core points are
// those with at least minSamples points (self included) inside eps, clusters
// grow by reachability from cores, and everything else is noise. Clusters
// that end up smaller than minClusterSize are dissolved into noise.
func densityCluster(points [][]float64, minSamples, minClusterSize int) []int {
	n := len(points)
	dist := pairwiseDistances(points)
	eps := estimateEps(dist, minSamples)

	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && dist[i][j] <= eps {
				neighbors[i] = append(neighbors[i], j)
			}
		}
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	visited := make([]bool, n)
	next := 0

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		if len(neighbors[i])+1 < minSamples {
			continue
		}
		labels[i] = next
		queue := append([]int(nil), neighbors[i]...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if labels[j] == Noise {
				labels[j] = next
			}
			if visited[j] {
				continue
			}
			visited[j] = true
			labels[j] = next
			if len(neighbors[j])+1 >= minSamples {
				queue = append(queue, neighbors[j]...)
			}
		}
		next++
	}

	// dissolve undersized clusters
	sizes := map[int]int{}
	for _, lbl := range labels {
		if lbl != Noise {
			sizes[lbl]++
		}
	}
	for i, lbl := range labels {
		if lbl != Noise && sizes[lbl] < minClusterSize {
			labels[i] = Noise
		}
	}
	return labels
}

func pairwiseDistances(points [][]float64) [][]float64 {
	n := len(points)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var s float64
			for d := range points[i] {
				diff := points[i][d] - points[j][d]
				s += diff * diff
			}
			d := math.Sqrt(s)
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

// estimateEps derives the neighborhood radius from the k-distance curve: the
// sorted distances to each point's k-th neighbor. The radius sits just below
// the largest jump in the curve's upper half, which separates in-cluster
// spacing from the gap to outliers. Without a pronounced jump, a scaled
// median is used.
func estimateEps(dist [][]float64, k int) float64 {
	n := len(dist)
	if k >= n {
		k = n - 1
	}
	if k < 1 {
		k = 1
	}

	kdist := make([]float64, n)
	row := make([]float64, 0, n-1)
	for i := 0; i < n; i++ {
		row = row[:0]
		for j := 0; j < n; j++ {
			if i != j {
				row = append(row, dist[i][j])
			}
		}
		sort.Float64s(row)
		kdist[i] = row[k-1]
	}
	sort.Float64s(kdist)

	median := kdist[n/2]
	bestJump, bestIdx := 0.0, -1
	for i := n / 2; i < n-1; i++ {
		if jump := kdist[i+1] - kdist[i]; jump > bestJump {
			bestJump = jump
			bestIdx = i
		}
	}
	if bestIdx >= 0 && bestJump > median*0.5 {
		return kdist[bestIdx] + 1e-12
	}
	return median * 1.5
}

// mergeToLimit reduces the number of clusters to at most maxTopics by
// repeatedly merging the pair with the closest centroids. Noise is untouched.
func mergeToLimit(points [][]float64, labels []int, maxTopics int) []int {
	if maxTopics <= 0 {
		return labels
	}
	members := map[int][]int{}
	for i, lbl := range labels {
		if lbl != Noise {
			members[lbl] = append(members[lbl], i)
		}
	}
	for len(members) > maxTopics {
		ids := make([]int, 0, len(members))
		for lbl := range members {
			ids = append(ids, lbl)
		}
		sort.Ints(ids)

		centroids := map[int][]float64{}
		for _, lbl := range ids {
			centroids[lbl] = centroid(points, members[lbl])
		}

		best := math.MaxFloat64
		var from, into int
		for a := 0; a < len(ids); a++ {
			for b := a + 1; b < len(ids); b++ {
				var s float64
				ca, cb := centroids[ids[a]], centroids[ids[b]]
				for d := range ca {
					diff := ca[d] - cb[d]
					s += diff * diff
				}
				if s < best {
					best = s
					into, from = ids[a], ids[b]
				}
			}
		}
		members[into] = append(members[into], members[from]...)
		delete(members, from)
	}

	out := make([]int, len(labels))
	for i := range out {
		out[i] = Noise
	}
	for lbl, idxs := range members {
		for _, i := range idxs {
			out[i] = lbl
		}
	}
	return out
}
