/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sixnimmt

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

const (
	MinValue = 1
	MaxValue = 104
)

var ErrInvalidValue = errors.New("invalid card value")

// Card is a single numbered card. Two cards are equal iff their values are.
type Card struct {
	value int
}

func NewCard(value int) (Card, error) {
	if value < MinValue || value > MaxValue {
		return Card{}, fmt.Errorf("%w: %d (must be between %d-%d inclusive)", ErrInvalidValue, value, MinValue, MaxValue)
	}

	return Card{value: value}, nil
}

func (c Card) Value() int {
	return c.value
}

// Score returns the bull-head penalty weight of the card.
func (c Card) Score() int {
	switch {
	case c.value%55 == 0:
		return 7
	case c.value%11 == 0:
		return 5
	case c.value%10 == 0:
		return 3
	case c.value%5 == 0:
		return 2
	default:
		return 1
	}
}

func (c Card) Less(other Card) bool {
	return c.value < other.value
}

func (c Card) String() string {
	return strconv.Itoa(c.value)
}

// CardSet is an unordered collection of unique cards, used for hands and piles.
type CardSet map[Card]struct{}

func NewCardSet(cards ...Card) CardSet {
	s := make(CardSet, len(cards))
	s.AddAll(cards...)

	return s
}

func (s CardSet) Add(c Card) {
	s[c] = struct{}{}
}

func (s CardSet) AddAll(cards ...Card) {
	for _, c := range cards {
		s[c] = struct{}{}
	}
}

// Remove reports whether c was present.
func (s CardSet) Remove(c Card) bool {
	if _, ok := s[c]; !ok {
		return false
	}
	delete(s, c)

	return true
}

func (s CardSet) Has(c Card) bool {
	_, ok := s[c]

	return ok
}

func (s CardSet) Len() int {
	return len(s)
}

func (s CardSet) Score() int {
	total := 0
	for c := range s {
		total += c.Score()
	}

	return total
}

// Sorted returns the cards in ascending order. Gameplay never depends on it.
func (s CardSet) Sorted() []Card {
	out := make([]Card, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Less(out[j])
	})

	return out
}

// Values is Sorted, flattened to plain integers for the wire.
func (s CardSet) Values() []int {
	sorted := s.Sorted()
	out := make([]int, len(sorted))
	for i, c := range sorted {
		out[i] = c.value
	}

	return out
}

// newDeck returns every card from MinValue to MaxValue in ascending order.
func newDeck() []Card {
	deck := make([]Card, 0, MaxValue-MinValue+1)
	for v := MinValue; v <= MaxValue; v++ {
		deck = append(deck, Card{value: v})
	}

	return deck
}
