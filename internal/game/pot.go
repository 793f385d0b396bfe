package game

import "sort"

// pot is one layer of the pot: the chips contributed up to a cap, and
// the seats still eligible to win them.
type pot struct {
	amount   int64
	eligible []int // indexes into the hand's seat slice
}

// buildPots layers the committed chips of the hand into a main pot and
// side pots keyed by the distinct per-player contribution levels. Folded
// players' chips stay in the layers they contributed to but the players
// are not eligible for any of them.
func buildPots(players []*Player) []pot {
	levels := make([]int64, 0, len(players))
	seen := make(map[int64]bool, len(players))
	for _, p := range players {
		if p.TotalBet > 0 && !seen[p.TotalBet] {
			seen[p.TotalBet] = true
			levels = append(levels, p.TotalBet)
		}
	}
	if len(levels) == 0 {
		return nil
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	pots := make([]pot, 0, len(levels))
	prev := int64(0)
	for _, level := range levels {
		layer := pot{}
		for i, p := range players {
			if p.TotalBet > prev {
				contribution := min(p.TotalBet, level) - prev
				layer.amount += contribution
			}
			if p.InHand() && p.TotalBet >= level {
				layer.eligible = append(layer.eligible, i)
			}
		}
		if layer.amount > 0 {
			pots = append(pots, layer)
		}
		prev = level
	}
	return pots
}
