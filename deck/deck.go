package deck

import (
	"math/rand/v2"
)

// Rand is the source of randomness used for shuffling. *rand.Rand from
// math/rand/v2 satisfies it, so a seeded generator gives a replayable deal.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int {
	return rand.IntN(n)
}

// Deck is a shuffled, duplicate-free run of tasks with a draw cursor.
type Deck struct {
	tasks  []Task
	cursor int
}

// BuildDeck deduplicates tasks by ID and shuffles the result. A later task
// with an already seen ID replaces the earlier one but keeps its position.
// A nil r uses the process-wide generator.
func BuildDeck(tasks []Task, r Rand) *Deck {
	if r == nil {
		r = globalRand{}
	}

	index := make(map[string]int, len(tasks))
	uniq := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if i, ok := index[t.ID]; ok {
			uniq[i] = t
			continue
		}
		index[t.ID] = len(uniq)
		uniq = append(uniq, t)
	}

	shuffle(uniq, r)

	return &Deck{tasks: uniq}
}

// shuffle is a Fisher-Yates pass; every permutation is equally likely as
// long as r.IntN is uniform.
func shuffle(tasks []Task, r Rand) {
	for i := len(tasks) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		tasks[i], tasks[j] = tasks[j], tasks[i]
	}
}

// Next returns the next undrawn task. ok is false once the deck is exhausted,
// and stays false for the rest of the deck's life.
func (d *Deck) Next() (t Task, ok bool) {
	if d == nil || d.cursor >= len(d.tasks) {
		return Task{}, false
	}

	t = d.tasks[d.cursor]
	d.cursor++

	return t, true
}

func (d *Deck) Len() int {
	if d == nil {
		return 0
	}
	return len(d.tasks)
}

func (d *Deck) Drawn() int {
	if d == nil {
		return 0
	}
	return d.cursor
}

func (d *Deck) Remaining() int {
	return d.Len() - d.Drawn()
}

func (d *Deck) Exhausted() bool {
	return d.Drawn() == d.Len()
}

// Tasks returns a copy of the deck in deal order, drawn cards included.
func (d *Deck) Tasks() []Task {
	if d == nil {
		return nil
	}
	return append([]Task(nil), d.tasks...)
}
