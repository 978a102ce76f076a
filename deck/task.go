/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package deck deals party tasks to a rotating list of players.
//
// A Session holds the players, the selected category, and a shuffled Deck built
// from that category's tasks. Each draw hands the next unseen task to the
// current player and passes the turn along. A Session is not safe for
// concurrent use; the owner is expected to serialise every call.
package deck

import (
	"errors"
	"fmt"
)

type Category string

const (
	Spicy   Category = "spicy"
	Funny   Category = "funny"
	Party   Category = "party"
	Extreme Category = "extreme"
)

// Categories lists every recognised category in display order.
var Categories = []Category{Spicy, Funny, Party, Extreme}

var ErrInvalidCategory = errors.New("invalid category")

func (c Category) Valid() bool {
	switch c {
	case Spicy, Funny, Party, Extreme:
		return true
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory accepts an exact category identifier.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// Task is a single dare or prompt. Tasks are treated as immutable once fetched.
type Task struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Category Category `json:"category"`
}
