// Package opt suggests a shorter stop order for a delivery. It only looks at
// straight-line distances; the suggestion is applied through the regular
// reorder operation.
package opt

import (
	"dispatchmap/internal/geo"
	"dispatchmap/internal/model"
)

// Suggestion is a proposed stop order with its straight-line length.
type Suggestion struct {
	OrderIDs    []string `json:"orderIds"`
	BeforeKm    float64  `json:"beforeKm"`
	AfterKm     float64  `json:"afterKm"`
	Improvement float64  `json:"improvementKm"`
}

// Suggest orders the stops by nearest neighbour from the first stop and then
// improves the path with 2-opt. The first stop never moves. The result is
// never longer than the current order.
func Suggest(stops []model.Order, iterations int) Suggestion {
	ids := make([]string, len(stops))
	for i, s := range stops {
		ids[i] = s.ID
	}
	before := pathKm(stops, identity(len(stops)))
	if len(stops) < 3 {
		return Suggestion{OrderIDs: ids, BeforeKm: before, AfterKm: before}
	}

	order := nearestNeighbour(stops)
	order = improve2Opt(stops, order, iterations)
	after := pathKm(stops, order)
	if after >= before {
		return Suggestion{OrderIDs: ids, BeforeKm: before, AfterKm: before}
	}
	out := make([]string, len(order))
	for i, idx := range order {
		out[i] = stops[idx].ID
	}
	return Suggestion{OrderIDs: out, BeforeKm: before, AfterKm: after, Improvement: before - after}
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func nearestNeighbour(stops []model.Order) []int {
	n := len(stops)
	used := make([]bool, n)
	order := make([]int, 0, n)
	order = append(order, 0)
	used[0] = true
	for len(order) < n {
		last := stops[order[len(order)-1]].Location
		best, bestD := -1, 0.0
		for j := 1; j < n; j++ {
			if used[j] {
				continue
			}
			d := geo.DistanceKm(last, stops[j].Location)
			if best < 0 || d < bestD {
				best, bestD = j, d
			}
		}
		used[best] = true
		order = append(order, best)
	}
	return order
}

// improve2Opt reverses sub-paths while that shortens the open path.
func improve2Opt(stops []model.Order, order []int, iterations int) []int {
	if iterations <= 0 {
		iterations = 1
	}
	best := append([]int(nil), order...)
	bestDist := pathKm(stops, best)
	n := len(order)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 1; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := twoOptSwap(best, i, k)
				d := pathKm(stops, cand)
				if d+1e-6 < bestDist {
					best = cand
					bestDist = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	// reverse i..k
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

func pathKm(stops []model.Order, order []int) float64 {
	total := 0.0
	for i := 0; i+1 < len(order); i++ {
		total += geo.DistanceKm(stops[order[i]].Location, stops[order[i+1]].Location)
	}
	return total
}

// Moves returns the (from, to) index moves that turn current into target.
// Both must hold the same ids.
func Moves(current, target []string) [][2]int {
	cur := append([]string(nil), current...)
	var moves [][2]int
	for i, id := range target {
		j := i
		for j < len(cur) && cur[j] != id {
			j++
		}
		if j == len(cur) || j == i {
			continue
		}
		moves = append(moves, [2]int{j, i})
		v := cur[j]
		copy(cur[i+1:j+1], cur[i:j])
		cur[i] = v
	}
	return moves
}
