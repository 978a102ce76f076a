/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

func serveHomePage(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body strings.Builder

		body.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		body.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		body.WriteString(getFavicon())
		body.WriteString(fmt.Sprintf(`<link rel="stylesheet" href="%s/assets/play/app.css">`, cfg.prefix))
		body.WriteString(`<title>Sippy</title></head><body><main class="container">`)
		body.WriteString(`<header class="title"><h1>🍻 SIPPY 🎉</h1><p>FUN TOGETHER! 🥳</p></header>`)
		body.WriteString(`<section class="card"><h2>🎯 Categories</h2><ul class="categories">`)
		for _, info := range categoryInfos {
			body.WriteString(fmt.Sprintf(`<li><span class="emoji">%s</span> <strong>%s</strong> - %s</li>`,
				info.Emoji,
				html.EscapeString(info.Name),
				html.EscapeString(info.Description),
			))
		}
		body.WriteString(`</ul></section>`)
		body.WriteString(fmt.Sprintf(`<a class="button primary" href="%s/play">🎉 START A GAME 🎉</a>`, cfg.prefix))
		body.WriteString(`</main></body></html>`)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(body.String()))
		if err != nil {
			errs <- err

			return
		}
	}
}

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func serveHealthCheck(cfg *Config, b *Backends, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		securityHeaders(cfg, w)

		failed := b.Check(ctx)

		resp := healthStatus{Status: "ok"}
		status := http.StatusOK
		if len(failed) > 0 {
			resp.Status = "unavailable"
			resp.Checks = make(map[string]string, len(failed))
			status = http.StatusServiceUnavailable

			names := make([]string, 0, len(failed))
			for name := range failed {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				resp.Checks[name] = "error"
				log.WithError(failed[name]).WithField("check", name).Warn("health check failed")
			}
		}

		if err := writeJSON(w, status, resp); err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /api/
Disallow: /play/

User-agent: CCBot
Disallow: /

User-agent: GPTBot
Disallow: /

User-agent: Google-Extended
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
