/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sixnimmt

// Conn is the only thing the rules need from a connection: a stable identity.
type Conn interface {
	ID() string
}

type Player struct {
	conn Conn
	hand CardSet
	pile CardSet
}

func NewPlayer(conn Conn) *Player {
	return &Player{
		conn: conn,
		hand: NewCardSet(),
		pile: NewCardSet(),
	}
}

func (p *Player) ID() string {
	return p.conn.ID()
}

func (p *Player) Conn() Conn {
	return p.conn
}

func (p *Player) Hand() CardSet {
	return p.hand
}

// Pile holds the penalty cards picked up so far.
func (p *Player) Pile() CardSet {
	return p.pile
}

// Play removes c from the hand. It reports false, leaving the hand as is,
// when c is not held.
func (p *Player) Play(c Card) bool {
	return p.hand.Remove(c)
}

func (p *Player) Score() int {
	return p.pile.Score()
}
