package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/sippy/catalog"
	"github.com/Seednode/sippy/games"
)

func testConfig() *Config {
	return &Config{
		bind:         "127.0.0.1",
		catalog:      catalogMemory,
		fetchTimeout: 2 * time.Second,
		port:         8080,
	}
}

func testBackends() *Backends {
	return &Backends{
		Catalog: catalog.Builtin(),
		Games:   games.NewMemoryStore(),
		checks:  make(map[string]func(context.Context) error),
	}
}

// newTestRouter builds the full router and returns it with the error channel
// handlers report write failures on.
func newTestRouter(t *testing.T, cfg *Config, b *Backends) (*httprouter.Router, chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errs := make(chan error, 16)

	return newRouter(ctx, cfg, b, errs), errs
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "decode body %q", rec.Body.String())

	return v
}
