package imgfeat

import (
	"math/bits"
	"sort"
)

// Match pairs a query descriptor index with its train-side counterpart.
type Match struct {
	QueryIdx int
	TrainIdx int
	Distance int
}

// HammingDistance counts differing bits between two descriptors.
func HammingDistance(a, b Descriptor) int {
	n := 0
	for i := 0; i < DescriptorSize; i++ {
		n += bits.OnesCount8(a[i] ^ b[i])
	}
	return n
}

// MatchDescriptors performs brute-force nearest-neighbor matching with a
// mutual cross check: a pair survives only when each descriptor is the
// other's nearest neighbor. Matches come back sorted by ascending
// distance, so callers can truncate to keep the strongest.
func MatchDescriptors(query, train []Descriptor) []Match {
	if len(query) == 0 || len(train) == 0 {
		return nil
	}

	bestForQuery := nearestNeighbors(query, train)
	bestForTrain := nearestNeighbors(train, query)

	matches := make([]Match, 0, len(query))
	for qi, ti := range bestForQuery {
		if ti >= 0 && bestForTrain[ti] == qi {
			matches = append(matches, Match{
				QueryIdx: qi,
				TrainIdx: ti,
				Distance: HammingDistance(query[qi], train[ti]),
			})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].QueryIdx < matches[j].QueryIdx
	})
	return matches
}

// nearestNeighbors returns, for every descriptor in from, the index of its
// closest descriptor in to (ties break toward the lower index).
func nearestNeighbors(from, to []Descriptor) []int {
	best := make([]int, len(from))
	for i, d := range from {
		bestIdx := -1
		bestDist := DescriptorSize*8 + 1
		for j := range to {
			dist := HammingDistance(d, to[j])
			if dist < bestDist {
				bestDist = dist
				bestIdx = j
			}
		}
		best[i] = bestIdx
	}
	return best
}
