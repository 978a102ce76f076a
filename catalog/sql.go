package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Seednode/sippy/deck"
)

// SQLStore reads tasks from the tasks table of a migrated database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) TasksByCategory(ctx context.Context, c deck.Category) ([]deck.Task, error) {
	if err := checkCategory(c); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT id, text, category
		FROM tasks
		WHERE category = ?
		ORDER BY id
	`), string(c))
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	tasks := []deck.Task{}
	for rows.Next() {
		var t deck.Task
		if err := rows.Scan(&t.ID, &t.Text, &t.Category); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading tasks: %w", err)
	}

	return tasks, nil
}

func (s *SQLStore) RandomTask(ctx context.Context, c deck.Category) (deck.Task, error) {
	if err := checkCategory(c); err != nil {
		return deck.Task{}, err
	}

	var t deck.Task
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT id, text, category
		FROM tasks
		WHERE category = ?
		ORDER BY RANDOM()
		LIMIT 1
	`), string(c)).Scan(&t.ID, &t.Text, &t.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return deck.Task{}, fmt.Errorf("%w: %s", ErrNoTasks, c)
	}
	if err != nil {
		return deck.Task{}, fmt.Errorf("querying random task: %w", err)
	}

	return t, nil
}

// AddTasks inserts tasks in a single transaction. Tasks without an ID are
// given a random UUID.
func (s *SQLStore) AddTasks(ctx context.Context, tasks []deck.Task) error {
	for _, t := range tasks {
		if err := checkCategory(t.Category); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(`
		INSERT INTO tasks (id, text, category) VALUES (?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		id := t.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, t.Text, string(t.Category)); err != nil {
			return fmt.Errorf("inserting task %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n)
	return n, err
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Seed fills an empty store with tasks under fresh UUIDs and reports how many
// were inserted. A store that already holds tasks is left alone.
func Seed(ctx context.Context, s *SQLStore, tasks []deck.Task) (int, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting tasks: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	rows := make([]deck.Task, 0, len(tasks))
	for _, t := range tasks {
		t.ID = uuid.NewString()
		rows = append(rows, t)
	}

	if err := s.AddTasks(ctx, rows); err != nil {
		return 0, err
	}

	return len(rows), nil
}
