/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package games stores the durable part of a game: who is playing, whose turn
// it is, and which category was picked. Decks are never stored; a restored
// game deals from a freshly shuffled one.
package games

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"

	"github.com/Seednode/sippy/deck"
)

var (
	ErrNotFound = errors.New("game not found")
	ErrExists   = errors.New("game already exists")
)

type Game struct {
	ID                 string        `json:"id"`
	Players            []string      `json:"players"`
	CurrentPlayerIndex int           `json:"currentPlayerIndex"`
	Category           deck.Category `json:"category,omitempty"`
}

// Update is a partial change to a Game. Nil fields are left alone.
type Update struct {
	Players            *[]string
	CurrentPlayerIndex *int
	Category           *deck.Category
}

// Apply returns g with u applied. A player index that falls outside the
// resulting player list is reset to the first player.
func (u Update) Apply(g Game) Game {
	g = g.clone()

	if u.Players != nil {
		g.Players = slices.Clone(*u.Players)
	}
	if u.CurrentPlayerIndex != nil {
		g.CurrentPlayerIndex = *u.CurrentPlayerIndex
	}
	if u.Category != nil {
		g.Category = *u.Category
	}

	if g.CurrentPlayerIndex < 0 || g.CurrentPlayerIndex >= len(g.Players) {
		g.CurrentPlayerIndex = 0
	}

	return g
}

func (g Game) clone() Game {
	g.Players = append([]string{}, g.Players...)
	return g
}

type Store interface {
	// Create stores a new game, assigning a UUID when g.ID is empty.
	Create(ctx context.Context, g Game) (Game, error)
	Get(ctx context.Context, id string) (Game, error)
	// Save creates or replaces g.
	Save(ctx context.Context, g Game) error
	Update(ctx context.Context, id string, u Update) (Game, error)
}

func withID(g Game) Game {
	g = g.clone()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return g
}
