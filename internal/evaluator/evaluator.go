// Package evaluator classifies the best five-card poker hand out of up
// to seven cards and provides a total order over evaluations.
package evaluator

import (
	"errors"
	"sort"

	"github.com/pokerhall/holdemd/internal/deck"
)

// HandRank is the category of a five-card hand, ordered weakest first.
type HandRank int

const (
	HighCard HandRank = iota
	OnePair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

// String returns the canonical name of the rank.
func (r HandRank) String() string {
	switch r {
	case HighCard:
		return "HIGH_CARD"
	case OnePair:
		return "ONE_PAIR"
	case TwoPair:
		return "TWO_PAIR"
	case ThreeOfAKind:
		return "THREE_OF_A_KIND"
	case Straight:
		return "STRAIGHT"
	case Flush:
		return "FLUSH"
	case FullHouse:
		return "FULL_HOUSE"
	case FourOfAKind:
		return "FOUR_OF_A_KIND"
	case StraightFlush:
		return "STRAIGHT_FLUSH"
	default:
		return "UNKNOWN"
	}
}

// Evaluation is a classified five-card hand. Two evaluations compare
// lexicographically on (rank, kickers); equality means a split.
type Evaluation struct {
	Rank    HandRank
	Kickers []int
	Cards   []deck.Card
}

// Compare returns -1, 0 or 1 ordering e against other.
func (e Evaluation) Compare(other Evaluation) int {
	if e.Rank != other.Rank {
		if e.Rank < other.Rank {
			return -1
		}
		return 1
	}
	for i := 0; i < len(e.Kickers) && i < len(other.Kickers); i++ {
		if e.Kickers[i] != other.Kickers[i] {
			if e.Kickers[i] < other.Kickers[i] {
				return -1
			}
			return 1
		}
	}
	if len(e.Kickers) != len(other.Kickers) {
		if len(e.Kickers) < len(other.Kickers) {
			return -1
		}
		return 1
	}
	return 0
}

// ErrTooFewCards is returned when fewer than five cards are supplied.
var ErrTooFewCards = errors.New("evaluator: at least 5 cards required")

// BestHand enumerates every five-card subset of hole+board and returns
// the maximum evaluation.
func BestHand(hole, board []deck.Card) (Evaluation, error) {
	combined := make([]deck.Card, 0, len(hole)+len(board))
	combined = append(combined, hole...)
	combined = append(combined, board...)
	if len(combined) < 5 {
		return Evaluation{}, ErrTooFewCards
	}

	var best Evaluation
	found := false
	combo := make([]deck.Card, 5)
	var walk func(start, depth int)
	walk = func(start, depth int) {
		if depth == 5 {
			eval := classify(combo)
			if !found || best.Compare(eval) < 0 {
				best = eval
				found = true
			}
			return
		}
		for i := start; i <= len(combined)-(5-depth); i++ {
			combo[depth] = combined[i]
			walk(i+1, depth+1)
		}
	}
	walk(0, 0)
	return best, nil
}

// DetermineWinners evaluates one hand per hole-card set against the board
// and returns the indexes holding the best hand together with that hand.
// Ties produce multiple indexes.
func DetermineWinners(holes [][]deck.Card, board []deck.Card) ([]int, Evaluation, error) {
	if len(holes) == 0 {
		return nil, Evaluation{}, nil
	}
	var best Evaluation
	var winners []int
	for i, hole := range holes {
		eval, err := BestHand(hole, board)
		if err != nil {
			return nil, Evaluation{}, err
		}
		if len(winners) == 0 {
			best = eval
			winners = []int{i}
			continue
		}
		switch best.Compare(eval) {
		case -1:
			best = eval
			winners = []int{i}
		case 0:
			winners = append(winners, i)
		}
	}
	return winners, best, nil
}

// classify determines the category and kicker tuple of exactly five cards.
func classify(cards []deck.Card) Evaluation {
	values := make([]int, 5)
	for i, c := range cards {
		values[i] = c.Value()
	}
	sort.Sort(sort.Reverse(sort.IntSlice(values)))

	ordered := make([]deck.Card, 5)
	copy(ordered, cards)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Value() > ordered[j].Value()
	})

	isFlush := true
	for _, c := range cards[1:] {
		if c.Suit != cards[0].Suit {
			isFlush = false
			break
		}
	}
	isStraight, straightHigh := detectStraight(values)

	counts := make(map[int]int, 5)
	for _, v := range values {
		counts[v]++
	}
	type group struct{ value, count int }
	groups := make([]group, 0, len(counts))
	for v, n := range counts {
		groups = append(groups, group{value: v, count: n})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].value > groups[j].value
	})

	switch {
	case isStraight && isFlush:
		return Evaluation{Rank: StraightFlush, Kickers: []int{straightHigh}, Cards: ordered}

	case groups[0].count == 4:
		quad := groups[0].value
		kicker := 0
		for _, v := range values {
			if v != quad && v > kicker {
				kicker = v
			}
		}
		return Evaluation{Rank: FourOfAKind, Kickers: []int{quad, kicker}, Cards: ordered}

	case groups[0].count == 3 && groups[1].count == 2:
		return Evaluation{Rank: FullHouse, Kickers: []int{groups[0].value, groups[1].value}, Cards: ordered}

	case isFlush:
		return Evaluation{Rank: Flush, Kickers: values, Cards: ordered}

	case isStraight:
		return Evaluation{Rank: Straight, Kickers: []int{straightHigh}, Cards: ordered}

	case groups[0].count == 3:
		trip := groups[0].value
		kickers := []int{trip}
		for _, v := range values {
			if v != trip {
				kickers = append(kickers, v)
			}
		}
		return Evaluation{Rank: ThreeOfAKind, Kickers: kickers, Cards: ordered}

	case groups[0].count == 2 && groups[1].count == 2:
		high, low := groups[0].value, groups[1].value
		kicker := 0
		for _, v := range values {
			if v != high && v != low && v > kicker {
				kicker = v
			}
		}
		return Evaluation{Rank: TwoPair, Kickers: []int{high, low, kicker}, Cards: ordered}

	case groups[0].count == 2:
		pair := groups[0].value
		kickers := []int{pair}
		for _, v := range values {
			if v != pair {
				kickers = append(kickers, v)
			}
		}
		return Evaluation{Rank: OnePair, Kickers: kickers, Cards: ordered}

	default:
		return Evaluation{Rank: HighCard, Kickers: values, Cards: ordered}
	}
}

// detectStraight reports whether the values form a straight and its high
// card. The wheel is handled by treating an Ace as rank 1, so A-2-3-4-5
// reports high=5.
func detectStraight(values []int) (bool, int) {
	unique := make([]int, 0, 6)
	seen := make(map[int]bool, 6)
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			unique = append(unique, v)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(unique)))
	if seen[14] {
		unique = append(unique, 1)
	}

	consecutive := 1
	for i := 1; i < len(unique); i++ {
		if unique[i-1]-1 == unique[i] {
			consecutive++
			if consecutive >= 5 {
				return true, unique[i-4]
			}
		} else {
			consecutive = 1
		}
	}
	return false, 0
}
