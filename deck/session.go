package deck

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// MinPlayers is the smallest table that can be dealt to.
const MinPlayers = 2

var (
	ErrEmptyName        = errors.New("player name is empty")
	ErrDuplicatePlayer  = errors.New("player already added")
	ErrNoSuchPlayer     = errors.New("no such player")
	ErrNotEnoughPlayers = fmt.Errorf("at least %d players are required", MinPlayers)
	ErrNoCategory       = errors.New("no category selected")
	ErrLoading          = errors.New("category is still loading")
	ErrUnavailable      = errors.New("category is unavailable")
	ErrEmptyCategory    = errors.New("category has no tasks")
)

// Status describes what the task slot of a session is currently showing.
type Status string

const (
	StatusWaitingForPlayers Status = "waiting_for_players"
	StatusChooseCategory    Status = "choose_category"
	StatusLoading           Status = "loading"
	StatusUnavailable       Status = "unavailable"
	StatusEmptyCategory     Status = "empty_category"
	StatusReady             Status = "ready"
	StatusShowing           Status = "showing"
	StatusExhausted         Status = "exhausted"
)

// Ticket identifies one category selection. Only the deck loaded for the
// latest ticket is accepted.
type Ticket uint64

// Card is the result of a draw: either a task dealt to a player, or the
// end-of-deck marker.
type Card struct {
	Task      Task   `json:"task"`
	Player    string `json:"player,omitempty"`
	Exhausted bool   `json:"exhausted,omitempty"`
}

type Session struct {
	rand Rand

	players []string
	turn    int

	category    Category
	deck        *Deck
	ticket      Ticket
	loading     bool
	unavailable bool

	current *Card
}

// NewSession returns an empty session. A nil r uses the process-wide generator.
func NewSession(r Rand) *Session {
	if r == nil {
		r = globalRand{}
	}
	return &Session{rand: r}
}

// AddPlayer appends a player. Names are trimmed and must be unique.
func (s *Session) AddPlayer(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if slices.Contains(s.players, name) {
		return fmt.Errorf("%w: %q", ErrDuplicatePlayer, name)
	}

	s.players = append(s.players, name)

	return nil
}

// RemovePlayer drops the player at index and returns their name. If the turn
// pointed past the end of the shortened list it goes back to the first player.
func (s *Session) RemovePlayer(index int) (string, error) {
	if index < 0 || index >= len(s.players) {
		return "", fmt.Errorf("%w: index %d", ErrNoSuchPlayer, index)
	}

	name := s.players[index]
	s.players = slices.Delete(s.players, index, index+1)
	s.turn = clampTurn(s.turn, len(s.players))

	return name, nil
}

// Restore replaces the player list and turn, as stored in a game record.
func (s *Session) Restore(players []string, turn int) error {
	restored := &Session{}
	for _, p := range players {
		if err := restored.AddPlayer(p); err != nil {
			return err
		}
	}

	s.players = restored.players
	s.turn = clampTurn(turn, len(s.players))

	return nil
}

// SelectCategory discards the current deck and starts loading a new one, even
// when c is already selected. The returned ticket must accompany the tasks
// passed to LoadDeck.
func (s *Session) SelectCategory(c Category) (Ticket, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCategory, string(c))
	}

	s.category = c
	s.ticket++
	s.loading = true
	s.unavailable = false
	s.deck = nil
	s.current = nil

	return s.ticket, nil
}

// LoadDeck builds the deck for the selection identified by t. Results for any
// older selection are ignored and false is returned. A non-nil fetchErr
// leaves the session with an empty, unavailable deck.
func (s *Session) LoadDeck(t Ticket, tasks []Task, fetchErr error) bool {
	if t != s.ticket || !s.loading {
		return false
	}

	s.loading = false
	s.current = nil

	if fetchErr != nil {
		s.unavailable = true
		s.deck = &Deck{}

		return true
	}

	s.deck = BuildDeck(tasks, s.rand)

	return true
}

// DrawAndAdvance deals the next card to the current player and passes the
// turn. Once the deck runs out it returns the exhausted marker without moving
// the turn, and keeps doing so until another category is selected.
func (s *Session) DrawAndAdvance() (Card, error) {
	switch {
	case s.loading:
		return Card{}, ErrLoading
	case len(s.players) < MinPlayers:
		return Card{}, ErrNotEnoughPlayers
	case s.category == "":
		return Card{}, ErrNoCategory
	case s.unavailable:
		return Card{}, ErrUnavailable
	case s.deck.Len() == 0:
		return Card{}, ErrEmptyCategory
	}

	t, ok := s.deck.Next()
	if !ok {
		card := Card{Task: Task{Category: s.category}, Exhausted: true}
		s.current = &card

		return card, nil
	}

	card := Card{Task: t, Player: s.players[s.turn]}
	s.current = &card
	s.turn = Advance(s.turn, len(s.players))

	return card, nil
}

// CanDraw reports whether DrawAndAdvance would deal a task right now.
func (s *Session) CanDraw() bool {
	return !s.loading &&
		len(s.players) >= MinPlayers &&
		s.category != "" &&
		!s.unavailable &&
		s.deck.Remaining() > 0
}

// CanRequest reports whether a draw may be asked for. Unlike CanDraw it stays
// true once the deck runs out so the exhausted marker can still be dealt.
func (s *Session) CanRequest() bool {
	return !s.loading &&
		len(s.players) >= MinPlayers &&
		s.category != "" &&
		!s.unavailable &&
		s.deck.Len() > 0
}

func (s *Session) Status() Status {
	switch {
	case s.loading:
		return StatusLoading
	case s.current != nil && s.current.Exhausted:
		return StatusExhausted
	case s.current != nil:
		return StatusShowing
	case s.category != "" && s.unavailable:
		return StatusUnavailable
	case s.category != "" && s.deck.Len() == 0:
		return StatusEmptyCategory
	case len(s.players) < MinPlayers:
		return StatusWaitingForPlayers
	case s.category == "":
		return StatusChooseCategory
	}
	return StatusReady
}

func (s *Session) Players() []string {
	return append([]string{}, s.players...)
}

func (s *Session) Turn() int {
	return s.turn
}

// CurrentPlayer is whoever receives the next card, or "" with no players.
func (s *Session) CurrentPlayer() string {
	if len(s.players) == 0 {
		return ""
	}
	return s.players[s.turn]
}

func (s *Session) Category() Category {
	return s.category
}

func (s *Session) Loading() bool {
	return s.loading
}

func (s *Session) Current() (Card, bool) {
	if s.current == nil {
		return Card{}, false
	}
	return *s.current, true
}

func (s *Session) Deck() *Deck {
	return s.deck
}

// View is a snapshot of a session for presentation.
type View struct {
	Players       []string `json:"players"`
	Turn          int      `json:"turn"`
	CurrentPlayer string   `json:"current_player,omitempty"`
	Category      Category `json:"category,omitempty"`
	Status        Status   `json:"status"`
	Card          *Card    `json:"card,omitempty"`
	DeckSize      int      `json:"deck_size"`
	Remaining     int      `json:"remaining"`
	CanDraw       bool     `json:"can_draw"`
	CanRequest    bool     `json:"can_request"`
}

func (s *Session) View() View {
	v := View{
		Players:       s.Players(),
		Turn:          s.turn,
		CurrentPlayer: s.CurrentPlayer(),
		Category:      s.category,
		Status:        s.Status(),
		DeckSize:      s.deck.Len(),
		Remaining:     s.deck.Remaining(),
		CanDraw:       s.CanDraw(),
		CanRequest:    s.CanRequest(),
	}

	if card, ok := s.Current(); ok {
		v.Card = &card
	}

	return v
}
