/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sixnimmt

import "fmt"

const (
	Rows        = 4
	RowCapacity = 5
)

// Position is the zero-indexed cell a card lands in.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Board holds Rows ordered card sequences. Once seeded, no row is ever empty.
type Board struct {
	rows [Rows][]Card
}

func NewBoard() *Board {
	return &Board{}
}

// Where returns the row whose last card is the greatest one still strictly
// below c. ok is false when c is lower than the last card of every row.
func (b *Board) Where(c Card) (row int, ok bool) {
	row = -1
	for i, r := range b.rows {
		if len(r) == 0 {
			continue
		}
		last := r[len(r)-1]
		if !last.Less(c) {
			continue
		}
		if row == -1 || b.last(row).Less(last) {
			row = i
		}
	}

	return row, row != -1
}

// Place appends c to the row chosen by Where. If the row would exceed
// RowCapacity, its prior contents are returned and c starts the row afresh.
// Callers must check Where first; an unresolvable card panics.
func (b *Board) Place(c Card) (Position, CardSet) {
	row, ok := b.Where(c)
	if !ok {
		panic(fmt.Sprintf("sixnimmt: no row accepts card %d", c.value))
	}

	if len(b.rows[row])+1 > RowCapacity {
		stack := NewCardSet(b.rows[row]...)
		b.rows[row] = []Card{c}

		return Position{Row: row, Col: 0}, stack
	}

	b.rows[row] = append(b.rows[row], c)

	return Position{Row: row, Col: len(b.rows[row]) - 1}, NewCardSet()
}

// PlaceAt takes every card in row and replaces them with c. row must be
// between 0 and Rows-1; anything else panics.
func (b *Board) PlaceAt(c Card, row int) (Position, CardSet) {
	if !validRow(row) {
		panic(fmt.Sprintf("sixnimmt: row %d out of range", row))
	}

	stack := NewCardSet(b.rows[row]...)
	b.rows[row] = []Card{c}

	return Position{Row: row, Col: 0}, stack
}

func (b *Board) last(row int) Card {
	r := b.rows[row]

	return r[len(r)-1]
}

// Empty reports whether no card has been placed on any row.
func (b *Board) Empty() bool {
	return b.Len() == 0
}

func (b *Board) Len() int {
	n := 0
	for _, r := range b.rows {
		n += len(r)
	}

	return n
}

// Rows returns a copy of the current rows.
func (b *Board) Rows() [][]Card {
	out := make([][]Card, Rows)
	for i, r := range b.rows {
		out[i] = append([]Card(nil), r...)
	}

	return out
}

// Values is Rows flattened to plain integers for the wire.
func (b *Board) Values() [][]int {
	out := make([][]int, Rows)
	for i, r := range b.rows {
		out[i] = make([]int, len(r))
		for j, c := range r {
			out[i][j] = c.value
		}
	}

	return out
}

func validRow(row int) bool {
	return row >= 0 && row < Rows
}
