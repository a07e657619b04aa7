package sixnimmt

import (
	"fmt"
	"testing"
)

func noShuffle([]Card) {}

// newTestSession adds n players p0..pn-1. With the identity shuffle, player i
// is dealt 10i+1..10i+10 and the rows are seeded with the next four values.
func newTestSession(t *testing.T, n int) (*Session, []*Player) {
	t.Helper()

	s := NewSession("test", DefaultMinPlayers, DefaultMaxPlayers, WithShuffle(noShuffle))
	players := make([]*Player, n)
	for i := range players {
		players[i] = NewPlayer(testConn(fmt.Sprintf("p%d", i)))
		if !s.Add(players[i]) {
			t.Fatalf("Add(p%d) = false", i)
		}
	}

	return s, players
}

func startedSession(t *testing.T, n int) (*Session, []*Player) {
	t.Helper()

	s, players := newTestSession(t, n)
	if !s.Start() {
		t.Fatal("Start() = false")
	}

	return s, players
}

// arrange replaces the dealt state with explicit rows and hands.
func arrange(s *Session, rows [Rows][]int, hands ...[]int) {
	for i, r := range rows {
		s.board.rows[i] = nil
		for _, v := range r {
			s.board.rows[i] = append(s.board.rows[i], mustCard(v))
		}
	}

	for i, h := range hands {
		s.players[i].hand = NewCardSet()
		for _, v := range h {
			s.players[i].hand.Add(mustCard(v))
		}
	}
}

func TestSessionAddRemove(t *testing.T) {
	s := NewSession("test", 2, 3)
	a := NewPlayer(testConn("a"))
	b := NewPlayer(testConn("b"))
	c := NewPlayer(testConn("c"))
	d := NewPlayer(testConn("d"))

	for _, p := range []*Player{a, b, c} {
		if !s.Add(p) {
			t.Fatalf("Add(%s) = false", p.ID())
		}
	}

	if s.Add(d) {
		t.Fatal("Add beyond max players succeeded")
	}

	if !s.Remove(c) {
		t.Fatal("Remove(c) = false")
	}
	if s.Remove(c) {
		t.Fatal("Remove of a non-member succeeded")
	}

	if s.Add(NewPlayer(testConn("a"))) {
		t.Fatal("Add of a duplicate id succeeded")
	}

	if !s.Start() {
		t.Fatal("Start() = false")
	}
	if s.Add(d) {
		t.Fatal("Add after start succeeded")
	}
}

func TestSessionStartRejections(t *testing.T) {
	t.Run("below min players", func(t *testing.T) {
		s, _ := newTestSession(t, 1)
		if s.Start() {
			t.Fatal("Start() with one player succeeded")
		}
	})

	t.Run("above max players", func(t *testing.T) {
		s, _ := newTestSession(t, 3)
		s.maxPlayers = 2
		if s.Start() {
			t.Fatal("Start() above max players succeeded")
		}
	})

	t.Run("player holds cards", func(t *testing.T) {
		s, players := newTestSession(t, 2)
		players[1].hand.Add(mustCard(42))
		if s.Start() {
			t.Fatal("Start() with a dealt hand succeeded")
		}
	})

	t.Run("board not empty", func(t *testing.T) {
		s, _ := newTestSession(t, 2)
		s.board.rows[2] = []Card{mustCard(42)}
		if s.Start() {
			t.Fatal("Start() with a seeded board succeeded")
		}
	})

	t.Run("already started", func(t *testing.T) {
		s, _ := startedSession(t, 2)
		if s.Start() {
			t.Fatal("second Start() succeeded")
		}
	})

	t.Run("deck too small", func(t *testing.T) {
		s := NewSession("test", 2, 2, WithCardsPerPlayer(51))
		s.Add(NewPlayer(testConn("a")))
		s.Add(NewPlayer(testConn("b")))
		if s.Start() {
			t.Fatal("Start() dealing more cards than the deck holds succeeded")
		}
	})
}

func TestSessionStartDeals(t *testing.T) {
	s := NewSession("test", DefaultMinPlayers, DefaultMaxPlayers)
	for i := range DefaultMaxPlayers {
		s.Add(NewPlayer(testConn(fmt.Sprintf("p%d", i))))
	}

	if s.ShouldEnd() {
		t.Fatal("ShouldEnd() before start")
	}

	if !s.Start() || !s.Started() {
		t.Fatal("Start() = false")
	}

	seen := NewCardSet()
	for _, p := range s.Players() {
		if p.Hand().Len() != CardsPerPlayer {
			t.Fatalf("%s holds %d cards, want %d", p.ID(), p.Hand().Len(), CardsPerPlayer)
		}
		for c := range p.Hand() {
			seen.Add(c)
		}
	}

	rows := s.Board().Rows()
	if len(rows) != Rows {
		t.Fatalf("board has %d rows, want %d", len(rows), Rows)
	}
	for i, r := range rows {
		if len(r) != 1 {
			t.Fatalf("row %d holds %d cards, want 1", i, len(r))
		}
		seen.Add(r[0])
	}

	if want := DefaultMaxPlayers*CardsPerPlayer + Rows; seen.Len() != want {
		t.Fatalf("dealt %d distinct cards, want %d", seen.Len(), want)
	}

	if s.ShouldEnd() {
		t.Fatal("ShouldEnd() with full hands")
	}
}

func TestSessionPlay(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		s, players := newTestSession(t, 2)
		players[0].hand.Add(mustCard(3))
		if s.Play(players[0], 3) {
			t.Fatal("Play() before start succeeded")
		}
	})

	t.Run("repeat and unheld cards", func(t *testing.T) {
		s, players := startedSession(t, 2)

		if s.Play(players[0], 15) {
			t.Fatal("Play() of a card not in hand succeeded")
		}
		if s.Play(players[0], 0) || s.Play(players[0], 105) {
			t.Fatal("Play() of an out-of-range value succeeded")
		}
		if !s.Play(players[0], 5) {
			t.Fatal("Play(5) = false")
		}
		if s.Play(players[0], 6) {
			t.Fatal("second Play() in the same round succeeded")
		}
		if players[0].Hand().Len() != CardsPerPlayer-1 {
			t.Fatalf("hand size = %d, want %d", players[0].Hand().Len(), CardsPerPlayer-1)
		}
	})

	t.Run("non-member", func(t *testing.T) {
		s, _ := startedSession(t, 2)
		stranger := NewPlayer(testConn("stranger"))
		stranger.hand.Add(mustCard(3))
		if s.Play(stranger, 3) {
			t.Fatal("Play() by a non-member succeeded")
		}
	})

	t.Run("smallest card player", func(t *testing.T) {
		s, players := startedSession(t, 3)

		if s.SmallestCardPlayer() != nil {
			t.Fatal("smallest card player set before any play")
		}

		s.Play(players[1], 15)
		if s.SmallestCardPlayer() != players[1] {
			t.Fatal("first play did not set the smallest card player")
		}

		s.Play(players[0], 3)
		if s.SmallestCardPlayer() != players[0] {
			t.Fatal("lower play did not take the smallest card player role")
		}

		s.Play(players[2], 25)
		if s.SmallestCardPlayer() != players[0] {
			t.Fatal("higher play took the smallest card player role")
		}
	})

	t.Run("after progress", func(t *testing.T) {
		s, players := startedSession(t, 2)
		arrange(s, [Rows][]int{{5}, {34}, {72}, {90}}, []int{33, 40}, []int{35, 50})

		s.Play(players[0], 33)
		s.Play(players[1], 35)
		if !s.Progress() {
			t.Fatal("Progress() = false")
		}
		if s.Play(players[0], 40) {
			t.Fatal("Play() after progress succeeded")
		}
	})
}

func TestSessionSelect(t *testing.T) {
	s, players := startedSession(t, 2)

	if s.Select(players[0], 0) {
		t.Fatal("Select() before all players committed succeeded")
	}

	s.Play(players[0], 1)
	if s.Select(players[0], 0) {
		t.Fatal("Select() before all players committed succeeded")
	}

	s.Play(players[1], 11)
	if !s.NeedsSelection() {
		t.Fatal("NeedsSelection() = false with every card below the rows")
	}

	if s.Select(players[1], 0) {
		t.Fatal("Select() by a player without the smallest card succeeded")
	}
	for _, row := range []int{-1, Rows} {
		if s.Select(players[0], row) {
			t.Fatalf("Select(%d) succeeded", row)
		}
	}

	if !s.Select(players[0], 2) {
		t.Fatal("Select(2) = false")
	}
	if row, ok := s.SelectedRow(); !ok || row != 2 {
		t.Fatalf("SelectedRow() = (%d, %v), want (2, true)", row, ok)
	}
	if s.Select(players[0], 1) {
		t.Fatal("second Select() succeeded")
	}
	if s.NeedsSelection() {
		t.Fatal("NeedsSelection() = true after a row was selected")
	}
}

func TestSessionProgressRejections(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		s, _ := newTestSession(t, 2)
		if s.Progress() {
			t.Fatal("Progress() before start succeeded")
		}
	})

	t.Run("incomplete commitments", func(t *testing.T) {
		s, players := startedSession(t, 2)
		arrange(s, [Rows][]int{{5}, {34}, {72}, {90}}, []int{33, 40}, []int{35, 50})
		s.Play(players[0], 33)
		if s.Progress() {
			t.Fatal("Progress() with a missing commitment succeeded")
		}
	})

	t.Run("mismatched hand sizes", func(t *testing.T) {
		s, players := startedSession(t, 2)
		arrange(s, [Rows][]int{{5}, {34}, {72}, {90}}, []int{33, 40}, []int{35, 50, 60})
		s.Play(players[0], 33)
		s.Play(players[1], 35)
		if s.Progress() {
			t.Fatal("Progress() with mismatched hands succeeded")
		}
	})

	t.Run("unresolved selection", func(t *testing.T) {
		s, players := startedSession(t, 2)
		s.Play(players[0], 1)
		s.Play(players[1], 11)
		if s.Progress() {
			t.Fatal("Progress() without a forced selection succeeded")
		}
	})

	t.Run("already progressed", func(t *testing.T) {
		s, players := startedSession(t, 2)
		arrange(s, [Rows][]int{{5}, {34}, {72}, {90}}, []int{33, 40}, []int{35, 50})
		s.Play(players[0], 33)
		s.Play(players[1], 35)
		if !s.Progress() {
			t.Fatal("Progress() = false")
		}
		if s.Progress() {
			t.Fatal("second Progress() succeeded")
		}
	})
}

func TestSessionProgressAscendingOrder(t *testing.T) {
	s, players := startedSession(t, 2)
	arrange(s, [Rows][]int{{5}, {34}, {72}, {90}}, []int{40, 41}, []int{36, 37})

	s.Play(players[0], 40)
	s.Play(players[1], 36)
	if !s.Progress() || !s.Progressed() {
		t.Fatal("Progress() = false")
	}

	played := s.CardsPlayed()
	if got := played["p1"]; got.Card.Value() != 36 || got.Position != (Position{Row: 1, Col: 1}) {
		t.Fatalf("p1 played %+v, want 36 at {1 1}", got)
	}
	if got := played["p0"]; got.Card.Value() != 40 || got.Position != (Position{Row: 1, Col: 2}) {
		t.Fatalf("p0 played %+v, want 40 at {1 2}", got)
	}

	if s.Select(players[1], 0) {
		t.Fatal("Select() after progress succeeded")
	}
}

func TestSessionProgressPickup(t *testing.T) {
	s, players := startedSession(t, 2)
	arrange(s, [Rows][]int{{5}, {34, 35, 36, 37, 38}, {72}, {90}}, []int{39, 41}, []int{100, 101})

	s.Play(players[1], 100)
	s.Play(players[0], 39)
	if !s.Progress() {
		t.Fatal("Progress() = false")
	}

	if got := s.CardsPlayed()["p0"].Position; got != (Position{Row: 1, Col: 0}) {
		t.Fatalf("p0 position = %+v, want {1 0}", got)
	}
	if got := s.CardsPlayed()["p1"].Position; got != (Position{Row: 3, Col: 1}) {
		t.Fatalf("p1 position = %+v, want {3 1}", got)
	}
	if players[0].Pile().Len() != 5 || players[0].Score() != 6 {
		t.Fatalf("p0 pile = %v (score %d), want 34-38 scoring 6", players[0].Pile().Values(), players[0].Score())
	}
	if players[1].Score() != 0 {
		t.Fatalf("p1 score = %d, want 0", players[1].Score())
	}
}

func TestSessionProgressForcedSelection(t *testing.T) {
	s, players := startedSession(t, 2)
	arrange(s, [Rows][]int{{50}, {60}, {70}, {80}}, []int{10, 11}, []int{20, 21})

	s.Play(players[1], 20)
	s.Play(players[0], 10)

	if s.Progress() {
		t.Fatal("Progress() before the forced selection succeeded")
	}
	if !s.Select(players[0], 2) {
		t.Fatal("Select(2) = false")
	}
	if !s.Progress() {
		t.Fatal("Progress() = false")
	}

	played := s.CardsPlayed()
	if got := played["p0"].Position; got != (Position{Row: 2, Col: 0}) {
		t.Fatalf("p0 position = %+v, want {2 0}", got)
	}
	if got := played["p1"].Position; got != (Position{Row: 2, Col: 1}) {
		t.Fatalf("p1 position = %+v, want {2 1}", got)
	}
	if !players[0].Pile().Has(mustCard(70)) || players[0].Score() != 3 {
		t.Fatalf("p0 pile = %v, want [70]", players[0].Pile().Values())
	}
}

func TestSessionReset(t *testing.T) {
	s, players := startedSession(t, 2)

	if s.Reset() {
		t.Fatal("Reset() before progress succeeded")
	}

	s.Play(players[0], 1)
	s.Play(players[1], 11)
	s.Select(players[0], 0)
	if !s.Progress() {
		t.Fatal("Progress() = false")
	}

	if !s.Reset() {
		t.Fatal("Reset() = false")
	}
	if s.Progressed() || s.SmallestCardPlayer() != nil || len(s.CardsPlayed()) != 0 || s.Ready() {
		t.Fatal("Reset() left round state behind")
	}
	if _, ok := s.SelectedRow(); ok {
		t.Fatal("Reset() left a selected row")
	}
	if s.Reset() {
		t.Fatal("second Reset() succeeded")
	}

	if !s.Play(players[0], 2) {
		t.Fatal("Play() in the next round = false")
	}
}

func TestSessionRemoveMidRound(t *testing.T) {
	s, players := startedSession(t, 3)

	s.Play(players[1], 15)
	s.Play(players[0], 3)
	s.Play(players[2], 25)

	if !s.Remove(players[0]) {
		t.Fatal("Remove(p0) = false")
	}
	if s.SmallestCardPlayer() != players[1] {
		t.Fatal("smallest card player not recomputed after removal")
	}
	if !s.Ready() {
		t.Fatal("remaining players should all have committed")
	}
}

func TestSessionFullGame(t *testing.T) {
	s, players := startedSession(t, 3)

	for round := 0; !s.ShouldEnd(); round++ {
		if round >= CardsPerPlayer {
			t.Fatalf("game still running after %d rounds", round)
		}

		for _, p := range players {
			if !s.Play(p, p.Hand().Sorted()[0].Value()) {
				t.Fatalf("round %d: %s could not play", round, p.ID())
			}
		}

		if s.NeedsSelection() && !s.Select(s.SmallestCardPlayer(), round%Rows) {
			t.Fatalf("round %d: Select() = false", round)
		}
		if !s.Progress() {
			t.Fatalf("round %d: Progress() = false", round)
		}
		if len(s.CardsPlayed()) != len(players) {
			t.Fatalf("round %d: %d cards played", round, len(s.CardsPlayed()))
		}
		if !s.Reset() {
			t.Fatalf("round %d: Reset() = false", round)
		}
	}

	total := s.Board().Len()
	for _, p := range players {
		total += p.Pile().Len()
	}
	if want := len(players)*CardsPerPlayer + Rows; total != want {
		t.Fatalf("%d cards on board and in piles, want %d", total, want)
	}

	standings := s.Standings()
	if len(standings) != len(players) {
		t.Fatalf("Standings() has %d entries", len(standings))
	}
	for i := 1; i < len(standings); i++ {
		if standings[i-1].Score > standings[i].Score {
			t.Fatalf("Standings() not ascending: %+v", standings)
		}
	}
}

func TestSessionStandingsTieBreak(t *testing.T) {
	s, players := newTestSession(t, 3)
	players[0].pile.Add(mustCard(55))
	players[1].pile.Add(mustCard(1))
	players[2].pile.Add(mustCard(2))

	got := s.Standings()
	want := []string{"p1", "p2", "p0"}
	for i, id := range want {
		if got[i].PlayerID != id {
			t.Fatalf("Standings() = %+v, want order %v", got, want)
		}
	}
}
