/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sixnimmt

import (
	"math/rand/v2"
	"sort"
)

const (
	DefaultMinPlayers = 2
	DefaultMaxPlayers = 10
	CardsPerPlayer    = 10
)

// Play is the resolved outcome of one player's card in a round.
type Play struct {
	Card     Card
	Position Position
}

// Standing is a player's final score; lower is better.
type Standing struct {
	PlayerID string `json:"player"`
	Score    int    `json:"score"`
}

type Option func(*Session)

func WithCardsPerPlayer(n int) Option {
	return func(s *Session) {
		s.cardsPerPlayer = n
	}
}

// WithShuffle replaces the deck shuffle, e.g. with a no-op for tests.
func WithShuffle(shuffle func([]Card)) Option {
	return func(s *Session) {
		s.shuffle = shuffle
	}
}

// Session is one game: its members, its board, and the round in progress.
// It is not safe for concurrent use; callers apply actions one at a time.
type Session struct {
	id             string
	minPlayers     int
	maxPlayers     int
	cardsPerPlayer int
	shuffle        func([]Card)

	players []*Player // join order

	started    bool
	progressed bool
	board      *Board

	cardsToPlay map[string]Card
	submitted   []string // player ids in commitment order
	cardsPlayed map[string]Play
	smallest    *Player
	selectedRow int
}

func NewSession(id string, minPlayers, maxPlayers int, opts ...Option) *Session {
	s := &Session{
		id:             id,
		minPlayers:     minPlayers,
		maxPlayers:     maxPlayers,
		cardsPerPlayer: CardsPerPlayer,
		shuffle: func(cards []Card) {
			rand.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
		},
		board:       NewBoard(),
		cardsToPlay: make(map[string]Card),
		cardsPlayed: make(map[string]Play),
		selectedRow: -1,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Started() bool {
	return s.started
}

func (s *Session) Progressed() bool {
	return s.progressed
}

func (s *Session) Board() *Board {
	return s.board
}

// Players returns the members in join order.
func (s *Session) Players() []*Player {
	return append([]*Player(nil), s.players...)
}

func (s *Session) Player(id string) *Player {
	for _, p := range s.players {
		if p.ID() == id {
			return p
		}
	}

	return nil
}

func (s *Session) indexOf(id string) int {
	for i, p := range s.players {
		if p.ID() == id {
			return i
		}
	}

	return -1
}

// SmallestCardPlayer is whoever holds the lowest committed card this round.
func (s *Session) SmallestCardPlayer() *Player {
	return s.smallest
}

// SelectedRow reports the row chosen this round by the smallest card player.
func (s *Session) SelectedRow() (int, bool) {
	return s.selectedRow, s.selectedRow != -1
}

// CardsPlayed returns the outcome of the last progressed round.
func (s *Session) CardsPlayed() map[string]Play {
	out := make(map[string]Play, len(s.cardsPlayed))
	for id, p := range s.cardsPlayed {
		out[id] = p
	}

	return out
}

func (s *Session) Add(p *Player) bool {
	if s.started || len(s.players) >= s.maxPlayers {
		return false
	}
	if s.indexOf(p.ID()) != -1 {
		return false
	}

	s.players = append(s.players, p)

	return true
}

// Remove drops p from the session. Mid-round, any commitment p made is
// withdrawn and the smallest card player is recomputed.
func (s *Session) Remove(p *Player) bool {
	i := s.indexOf(p.ID())
	if i == -1 {
		return false
	}

	s.players = append(s.players[:i], s.players[i+1:]...)

	if _, ok := s.cardsToPlay[p.ID()]; ok {
		delete(s.cardsToPlay, p.ID())
		for j, id := range s.submitted {
			if id == p.ID() {
				s.submitted = append(s.submitted[:j], s.submitted[j+1:]...)
				break
			}
		}
	}
	delete(s.cardsPlayed, p.ID())

	if s.smallest != nil && s.smallest.ID() == p.ID() {
		s.smallest = nil
		s.selectedRow = -1
		for _, id := range s.submitted {
			if s.smallest == nil || s.cardsToPlay[id].Less(s.cardsToPlay[s.smallest.ID()]) {
				s.smallest = s.Player(id)
			}
		}
	}

	return true
}

// Start deals a fresh shuffled deck: cardsPerPlayer cards to each player and
// one card to seed every board row.
func (s *Session) Start() bool {
	if s.started {
		return false
	}
	if len(s.players) < s.minPlayers || len(s.players) > s.maxPlayers {
		return false
	}
	if !s.board.Empty() {
		return false
	}
	for _, p := range s.players {
		if p.hand.Len() > 0 {
			return false
		}
	}

	deck := newDeck()
	if len(s.players)*s.cardsPerPlayer+Rows > len(deck) {
		return false
	}
	s.shuffle(deck)

	for _, p := range s.players {
		p.hand.AddAll(deck[:s.cardsPerPlayer]...)
		deck = deck[s.cardsPerPlayer:]
	}

	for row := range Rows {
		s.board.rows[row] = []Card{deck[row]}
	}

	s.started = true

	return true
}

// Play commits value from p's hand for the current round.
func (s *Session) Play(p *Player, value int) bool {
	if !s.started || s.progressed {
		return false
	}
	i := s.indexOf(p.ID())
	if i == -1 {
		return false
	}
	p = s.players[i]
	if _, ok := s.cardsToPlay[p.ID()]; ok {
		return false
	}

	c, err := NewCard(value)
	if err != nil {
		return false
	}
	if !p.Play(c) {
		return false
	}

	s.cardsToPlay[p.ID()] = c
	s.submitted = append(s.submitted, p.ID())

	if s.smallest == nil || c.Less(s.cardsToPlay[s.smallest.ID()]) {
		s.smallest = p
	}

	return true
}

// Ready reports whether every player has committed a card this round.
func (s *Session) Ready() bool {
	if len(s.players) == 0 {
		return false
	}
	for _, p := range s.players {
		if _, ok := s.cardsToPlay[p.ID()]; !ok {
			return false
		}
	}

	return true
}

// Committed reports whether p has a card pending in the current round.
func (s *Session) Committed(p *Player) bool {
	_, ok := s.cardsToPlay[p.ID()]

	return ok
}

// NeedsSelection reports whether the round is blocked on the smallest card
// player choosing a row to take.
func (s *Session) NeedsSelection() bool {
	if s.smallest == nil || s.selectedRow != -1 {
		return false
	}
	_, ok := s.board.Where(s.cardsToPlay[s.smallest.ID()])

	return !ok
}

func (s *Session) Select(p *Player, row int) bool {
	if !s.started || s.progressed || !s.Ready() {
		return false
	}
	if s.smallest == nil || s.smallest.ID() != p.ID() {
		return false
	}
	if !validRow(row) || s.selectedRow != -1 {
		return false
	}

	s.selectedRow = row

	return true
}

// Progress resolves the round, placing committed cards in ascending order.
func (s *Session) Progress() bool {
	if !s.started || s.progressed || !s.Ready() {
		return false
	}

	handSize := s.players[0].hand.Len()
	for _, p := range s.players[1:] {
		if p.hand.Len() != handSize {
			return false
		}
	}

	if s.NeedsSelection() {
		return false
	}

	order := append([]string(nil), s.submitted...)
	sort.SliceStable(order, func(i, j int) bool {
		return s.cardsToPlay[order[i]].Less(s.cardsToPlay[order[j]])
	})

	for _, id := range order {
		p := s.Player(id)
		c := s.cardsToPlay[id]

		var (
			pos   Position
			stack CardSet
		)
		if id == s.smallest.ID() && s.selectedRow != -1 {
			pos, stack = s.board.PlaceAt(c, s.selectedRow)
		} else {
			pos, stack = s.board.Place(c)
		}

		for card := range stack {
			p.pile.Add(card)
		}
		s.cardsPlayed[id] = Play{Card: c, Position: pos}
	}

	s.progressed = true

	return true
}

// Reset clears the resolved round so the next one can be collected.
func (s *Session) Reset() bool {
	if !s.progressed {
		return false
	}

	s.smallest = nil
	s.selectedRow = -1
	s.cardsToPlay = make(map[string]Card)
	s.submitted = nil
	s.cardsPlayed = make(map[string]Play)
	s.progressed = false

	return true
}

// ShouldEnd reports whether a started game has run every hand out.
func (s *Session) ShouldEnd() bool {
	if !s.started {
		return false
	}
	for _, p := range s.players {
		if p.hand.Len() > 0 {
			return false
		}
	}

	return true
}

// Standings ranks every player by ascending score, ties by id.
func (s *Session) Standings() []Standing {
	out := make([]Standing, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, Standing{PlayerID: p.ID(), Score: p.Score()})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].PlayerID < out[j].PlayerID
	})

	return out
}
