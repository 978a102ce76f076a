package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"github.com/Seednode/sippy/catalog"
	"github.com/Seednode/sippy/deck"
	"github.com/Seednode/sippy/games"
)

type categoryInfo struct {
	ID          deck.Category `json:"id"`
	Emoji       string        `json:"emoji"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
}

var categoryInfos = []categoryInfo{
	{ID: deck.Spicy, Emoji: "🌶️", Name: "Spicy", Description: "Daring challenges"},
	{ID: deck.Funny, Emoji: "😂", Name: "Funny", Description: "Silly tasks"},
	{ID: deck.Party, Emoji: "🎊", Name: "Party", Description: "Party vibes"},
	{ID: deck.Extreme, Emoji: "🔥", Name: "Extreme", Description: "Hardcore challenges"},
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return deck.Category(fl.Field().String()).Valid()
	})
	return v
}

type createGameRequest struct {
	Players  []string `json:"players" validate:"required,min=2,unique,dive,required"`
	Category string   `json:"category" validate:"required,category"`
}

type updateGameRequest struct {
	Players            *[]string `json:"players" validate:"omitempty,min=2,unique,dive,required"`
	CurrentPlayerIndex *int      `json:"currentPlayerIndex" validate:"omitempty,min=0"`
	Category           *string   `json:"category" validate:"omitempty,category"`
}

// normalisePlayers applies the same naming rules as a live session.
func normalisePlayers(players []string) ([]string, error) {
	s := deck.NewSession(nil)
	for _, p := range players {
		if err := s.AddPlayer(p); err != nil {
			return nil, err
		}
	}
	return s.Players(), nil
}

func decodeAndValidate(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return validate.Struct(v)
}

// logged wraps an API handler with the SERVE log line.
func logged(cfg *Config, name string, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()
		cw := &countingWriter{ResponseWriter: w}

		h(cw, r, p)

		logf(cfg, "SERVE: %s (%s) to %s in %s",
			name,
			humanReadableSize(cw.written),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveCategories(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		if err := writeJSON(w, http.StatusOK, categoryInfos); err != nil {
			errs <- err
		}
	}
}

func serveTasks(cfg *Config, cat catalog.Catalog, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		securityHeaders(cfg, w)

		c, err := deck.ParseCategory(p.ByName("category"))
		if err != nil {
			if err := writeError(w, http.StatusBadRequest, "Invalid category"); err != nil {
				errs <- err
			}
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.fetchTimeout)
		defer cancel()

		tasks, err := cat.TasksByCategory(ctx, c)
		if err != nil {
			log.WithError(err).WithField("category", c).Error("loading tasks failed")
			if err := writeError(w, http.StatusInternalServerError, "Failed to load tasks"); err != nil {
				errs <- err
			}
			return
		}

		if err := writeJSON(w, http.StatusOK, tasks); err != nil {
			errs <- err
		}
	}
}

func serveRandomTask(cfg *Config, cat catalog.Catalog, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		securityHeaders(cfg, w)

		c, err := deck.ParseCategory(p.ByName("category"))
		if err != nil {
			if err := writeError(w, http.StatusBadRequest, "Invalid category"); err != nil {
				errs <- err
			}
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.fetchTimeout)
		defer cancel()

		task, err := cat.RandomTask(ctx, c)
		switch {
		case errors.Is(err, catalog.ErrNoTasks):
			err = writeError(w, http.StatusNotFound, "No tasks in category")
		case err != nil:
			log.WithError(err).WithField("category", c).Error("loading random task failed")
			err = writeError(w, http.StatusInternalServerError, "Failed to load tasks")
		default:
			err = writeJSON(w, http.StatusOK, task)
		}
		if err != nil {
			errs <- err
		}
	}
}

func serveCreateGame(cfg *Config, store games.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		var req createGameRequest
		err := decodeAndValidate(r, &req)

		var players []string
		if err == nil {
			players, err = normalisePlayers(req.Players)
		}
		if err != nil {
			if err := writeError(w, http.StatusBadRequest, "Invalid game data"); err != nil {
				errs <- err
			}
			return
		}

		g, err := store.Create(r.Context(), games.Game{
			Players:  players,
			Category: deck.Category(req.Category),
		})
		if err != nil {
			log.WithError(err).Error("creating game failed")
			if err := writeError(w, http.StatusInternalServerError, "Failed to create game"); err != nil {
				errs <- err
			}
			return
		}

		logf(cfg, "GAMES: Created game record %s", g.ID)

		if err := writeJSON(w, http.StatusOK, g); err != nil {
			errs <- err
		}
	}
}

func serveGetGame(cfg *Config, store games.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		securityHeaders(cfg, w)

		g, err := store.Get(r.Context(), p.ByName("id"))
		switch {
		case errors.Is(err, games.ErrNotFound):
			err = writeError(w, http.StatusNotFound, "Game not found")
		case err != nil:
			log.WithError(err).Error("loading game failed")
			err = writeError(w, http.StatusInternalServerError, "Failed to load game")
		default:
			err = writeJSON(w, http.StatusOK, g)
		}
		if err != nil {
			errs <- err
		}
	}
}

func serveUpdateGame(cfg *Config, store games.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		securityHeaders(cfg, w)

		var req updateGameRequest
		err := decodeAndValidate(r, &req)

		var u games.Update
		if err == nil && req.Players != nil {
			var players []string
			players, err = normalisePlayers(*req.Players)
			u.Players = &players
		}
		if err != nil {
			if err := writeError(w, http.StatusBadRequest, "Invalid update data"); err != nil {
				errs <- err
			}
			return
		}

		u.CurrentPlayerIndex = req.CurrentPlayerIndex
		if req.Category != nil {
			c := deck.Category(*req.Category)
			u.Category = &c
		}

		g, err := store.Update(r.Context(), p.ByName("id"), u)
		switch {
		case errors.Is(err, games.ErrNotFound):
			err = writeError(w, http.StatusNotFound, "Game not found")
		case err != nil:
			log.WithError(err).Error("updating game failed")
			err = writeError(w, http.StatusInternalServerError, "Failed to update game")
		default:
			err = writeJSON(w, http.StatusOK, g)
		}
		if err != nil {
			errs <- err
		}
	}
}

// registerAPI sets up the JSON API:
//   - GET   $path/categories             → category metadata
//   - GET   $path/tasks/:category        → every task in a category
//   - GET   $path/tasks/:category/random → one random task, repeats allowed
//   - POST  $path/games                  → create a game record
//   - GET   $path/games/:id              → read a game record
//   - PATCH $path/games/:id              → partially update a game record
func registerAPI(cfg *Config, path string, mux *httprouter.Router, b *Backends, errs chan<- error) {
	path = cfg.prefix + path

	mux.GET(path+"/categories", logged(cfg, "Categories", serveCategories(cfg, errs)))

	mux.GET(path+"/tasks/:category", logged(cfg, "Tasks", serveTasks(cfg, b.Catalog, errs)))
	mux.GET(path+"/tasks/:category/random", logged(cfg, "Random task", serveRandomTask(cfg, b.Catalog, errs)))

	mux.POST(path+"/games", logged(cfg, "Create game", serveCreateGame(cfg, b.Games, errs)))
	mux.GET(path+"/games/:id", logged(cfg, "Game", serveGetGame(cfg, b.Games, errs)))
	mux.PATCH(path+"/games/:id", logged(cfg, "Update game", serveUpdateGame(cfg, b.Games, errs)))
}
