package deck

import (
	"errors"
	rand "math/rand/v2"
)

// ErrEmpty is returned when drawing from an exhausted deck.
var ErrEmpty = errors.New("deck: not enough cards left")

// Deck represents an ordered sequence of up to 52 unique cards.
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// New creates a full 52-card deck shuffled with the provided RNG.
func New(rng *rand.Rand) *Deck {
	d := &Deck{
		cards: make([]Card, 0, 52),
		rng:   rng,
	}
	d.Reset()
	return d
}

// NewStacked creates a deck containing exactly the given cards in draw
// order. Used by tests that need a known deal.
func NewStacked(cards ...Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	copy(d.cards, cards)
	return d
}

// Reset restores the deck to a full 52-card deck and shuffles it.
// A stacked deck has no RNG and keeps its fixed order.
func (d *Deck) Reset() {
	if d.rng == nil {
		return
	}
	d.cards = d.cards[:0]
	for suit := Hearts; suit <= Spades; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			d.cards = append(d.cards, NewCard(rank, suit))
		}
	}
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Draw removes and returns the top card.
func (d *Deck) Draw() (Card, error) {
	if len(d.cards) == 0 {
		return Card{}, ErrEmpty
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, nil
}

// DrawMany removes and returns the top n cards, failing unless at least
// n cards remain.
func (d *Deck) DrawMany(n int) ([]Card, error) {
	if n > len(d.cards) {
		return nil, ErrEmpty
	}
	cards := make([]Card, n)
	for i := range cards {
		card, err := d.Draw()
		if err != nil {
			return nil, err
		}
		cards[i] = card
	}
	return cards, nil
}

// Len returns the number of cards left in the deck.
func (d *Deck) Len() int {
	return len(d.cards)
}
