package catalog

import (
	"context"

	"github.com/Seednode/sippy/deck"
)

// Static serves tasks from a fixed in-memory table. It never changes after
// construction.
type Static struct {
	all        []deck.Task
	byCategory map[deck.Category][]deck.Task
}

// NewStatic copies tasks into a new table. Tasks with an unknown category are
// kept in All but can never be requested.
func NewStatic(tasks []deck.Task) *Static {
	s := &Static{
		all:        append([]deck.Task(nil), tasks...),
		byCategory: make(map[deck.Category][]deck.Task, len(deck.Categories)),
	}

	for _, t := range s.all {
		s.byCategory[t.Category] = append(s.byCategory[t.Category], t)
	}

	return s
}

// Builtin returns the table shipped with the binary.
func Builtin() *Static {
	return NewStatic(builtinTasks)
}

func (s *Static) TasksByCategory(_ context.Context, c deck.Category) ([]deck.Task, error) {
	if err := checkCategory(c); err != nil {
		return nil, err
	}
	return append([]deck.Task{}, s.byCategory[c]...), nil
}

func (s *Static) RandomTask(_ context.Context, c deck.Category) (deck.Task, error) {
	if err := checkCategory(c); err != nil {
		return deck.Task{}, err
	}
	return pick(s.byCategory[c], c)
}

// All returns every task in table order.
func (s *Static) All() []deck.Task {
	return append([]deck.Task(nil), s.all...)
}

// Extreme ships empty; it is filled from a database.
var builtinTasks = []deck.Task{
	{ID: "1", Category: deck.Spicy, Text: "Tell a secret, or drink 3 sips 🤫"},
	{ID: "2", Category: deck.Spicy, Text: "Give someone a kiss on the cheek, or drink 2 sips 💋"},
	{ID: "3", Category: deck.Spicy, Text: "Say who you have a crush on, or drink 4 sips 💕"},
	{ID: "4", Category: deck.Spicy, Text: "Show off your best dance move, or drink 2 💃"},
	{ID: "5", Category: deck.Spicy, Text: "Call your ex on speaker, or drink 5 📱"},
	{ID: "6", Category: deck.Spicy, Text: "Share your most embarrassing memory, or drink 3 😳"},
	{ID: "7", Category: deck.Spicy, Text: "Do 5 push-ups, or drink 2 💪"},
	{ID: "8", Category: deck.Spicy, Text: "Do 10 squats, or drink 2 🏋️"},
	{ID: "9", Category: deck.Spicy, Text: "Give someone a 30 second massage, or drink 2 💆"},
	{ID: "10", Category: deck.Spicy, Text: "Change your profile picture to something silly for 10 minutes, or drink 3 🤡"},

	{ID: "11", Category: deck.Funny, Text: "Impersonate someone at the table while the others guess who 🎭"},
	{ID: "12", Category: deck.Funny, Text: "Talk for a minute using only animal noises 🐶"},
	{ID: "13", Category: deck.Funny, Text: "Perform a 30 second stand-up set 🎤"},
	{ID: "14", Category: deck.Funny, Text: "Sing your favourite song opera style 🎵"},
	{ID: "15", Category: deck.Funny, Text: "Mime \"a fish in water\" 🐟"},
	{ID: "16", Category: deck.Funny, Text: "Tell a joke. If nobody laughs, drink 2 😄"},
	{ID: "17", Category: deck.Funny, Text: "Do a TikTok dance 💃"},
	{ID: "18", Category: deck.Funny, Text: "Talk through your nose for 30 seconds 👃"},
	{ID: "19", Category: deck.Funny, Text: "Make up a four word poem about this group ✍️"},
	{ID: "20", Category: deck.Funny, Text: "Tell a story three words at a time 📖"},

	{ID: "21", Category: deck.Party, Text: "Everyone at the table drinks! 🍻"},
	{ID: "22", Category: deck.Party, Text: "Invent a new drinking rule for the whole group 📜"},
	{ID: "23", Category: deck.Party, Text: "Start a round of Never Have I Ever 🙈"},
	{ID: "24", Category: deck.Party, Text: "All the guys drink 🍺"},
	{ID: "25", Category: deck.Party, Text: "All the girls drink 🥂"},
	{ID: "26", Category: deck.Party, Text: "The person on your right drinks 2 ➡️"},
	{ID: "27", Category: deck.Party, Text: "Everyone with blue eyes drinks 👁️"},
	{ID: "28", Category: deck.Party, Text: "Take 3 sips and hand out 3 sips 🔄"},
	{ID: "29", Category: deck.Party, Text: "Everyone holding a phone drinks 📱"},
	{ID: "30", Category: deck.Party, Text: "Swap seats with someone and both drink 🔁"},
}
