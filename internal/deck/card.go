package deck

import (
	"fmt"
	"strings"
)

// Suit represents a card suit
type Suit int

const (
	Hearts Suit = iota
	Diamonds
	Clubs
	Spades
)

// String returns the wire representation of a suit
func (s Suit) String() string {
	switch s {
	case Hearts:
		return "H"
	case Diamonds:
		return "D"
	case Clubs:
		return "C"
	case Spades:
		return "S"
	default:
		return "?"
	}
}

// Rank represents a card rank. Aces are high (14) but count as 1 for
// the A-2-3-4-5 straight.
type Rank int

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

// String returns the wire representation of a rank
func (r Rank) String() string {
	switch r {
	case Two:
		return "2"
	case Three:
		return "3"
	case Four:
		return "4"
	case Five:
		return "5"
	case Six:
		return "6"
	case Seven:
		return "7"
	case Eight:
		return "8"
	case Nine:
		return "9"
	case Ten:
		return "T"
	case Jack:
		return "J"
	case Queen:
		return "Q"
	case King:
		return "K"
	case Ace:
		return "A"
	default:
		return "?"
	}
}

// Card represents a playing card
type Card struct {
	Rank Rank
	Suit Suit
}

// NewCard creates a new card
func NewCard(rank Rank, suit Suit) Card {
	return Card{Rank: rank, Suit: suit}
}

// String returns the two-character token for the card, e.g. "AS" or "TD"
func (c Card) String() string {
	return c.Rank.String() + c.Suit.String()
}

// Value returns the numeric value of the card for comparison
func (c Card) Value() int {
	return int(c.Rank)
}

// ParseCard parses a two-character token like "AS" or "td" into a Card
func ParseCard(token string) (Card, error) {
	if len(token) != 2 {
		return Card{}, fmt.Errorf("invalid card token %q", token)
	}

	var rank Rank
	switch strings.ToUpper(token[:1]) {
	case "2":
		rank = Two
	case "3":
		rank = Three
	case "4":
		rank = Four
	case "5":
		rank = Five
	case "6":
		rank = Six
	case "7":
		rank = Seven
	case "8":
		rank = Eight
	case "9":
		rank = Nine
	case "T":
		rank = Ten
	case "J":
		rank = Jack
	case "Q":
		rank = Queen
	case "K":
		rank = King
	case "A":
		rank = Ace
	default:
		return Card{}, fmt.Errorf("invalid rank %q", token[:1])
	}

	var suit Suit
	switch strings.ToUpper(token[1:]) {
	case "H":
		suit = Hearts
	case "D":
		suit = Diamonds
	case "C":
		suit = Clubs
	case "S":
		suit = Spades
	default:
		return Card{}, fmt.Errorf("invalid suit %q", token[1:])
	}

	return Card{Rank: rank, Suit: suit}, nil
}

// ParseCards parses a space-separated list of card tokens
func ParseCards(s string) ([]Card, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	fields := strings.Fields(s)
	cards := make([]Card, 0, len(fields))
	for _, f := range fields {
		card, err := ParseCard(f)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// Tokens returns the wire tokens for a list of cards
func Tokens(cards []Card) []string {
	tokens := make([]string, len(cards))
	for i, c := range cards {
		tokens[i] = c.String()
	}
	return tokens
}

// Join renders a list of cards as space-separated tokens
func Join(cards []Card) string {
	return strings.Join(Tokens(cards), " ")
}
