// Package catalog supplies the tasks a deck is built from.
//
// Tasks come from a built-in table, a SQL database (SQLite or Postgres), or
// either of those behind a Redis read-through cache. Every implementation
// rejects categories outside deck.Categories with deck.ErrInvalidCategory.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/Seednode/sippy/deck"
)

var ErrNoTasks = errors.New("no tasks in category")

// Catalog is the read side every task source implements.
type Catalog interface {
	// TasksByCategory returns every task in c, in no particular order.
	TasksByCategory(ctx context.Context, c deck.Category) ([]deck.Task, error)

	// RandomTask returns one uniformly chosen task from c. Repeated calls may
	// return the same task.
	RandomTask(ctx context.Context, c deck.Category) (deck.Task, error)
}

// Pinger is implemented by catalogs backed by something that can go away.
type Pinger interface {
	Ping(ctx context.Context) error
}

func checkCategory(c deck.Category) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", deck.ErrInvalidCategory, string(c))
	}
	return nil
}

func pick(tasks []deck.Task, c deck.Category) (deck.Task, error) {
	if len(tasks) == 0 {
		return deck.Task{}, fmt.Errorf("%w: %s", ErrNoTasks, c)
	}
	return tasks[rand.IntN(len(tasks))], nil
}
