/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"embed"
	"fmt"
	"html"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

//go:embed assets/*
var assets embed.FS

// serveHomePage lists known sessions, newest first.
func serveHomePage(cfg *Config, sm *SessionManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		sessions, err := sm.turns.ListSessions(r.Context())
		if err != nil {
			cfg.logger.Error("list sessions", "error", err)
			http.Error(w, "unable to list sessions", http.StatusInternalServerError)

			return
		}

		var body strings.Builder

		body.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		body.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		body.WriteString(getFavicon(cfg))
		body.WriteString(`<link rel="stylesheet" href="` + cfg.prefix + `/assets/app.css">`)
		body.WriteString(`<title>Trick or Treat</title></head><body><main>`)
		body.WriteString(`<h1>Trick or Treat</h1>`)
		body.WriteString(`<p><a class="button" href="` + cfg.prefix + `/trickortreat">New session</a></p>`)

		if len(sessions) > 0 {
			body.WriteString(`<table class="sessions"><thead><tr><th>Session</th><th>State</th><th>Players</th><th>Current turn</th></tr></thead><tbody>`)
			for _, s := range sessions {
				fmt.Fprintf(&body, `<tr><td><a href="%s/trickortreat/%s">%s</a></td><td>%s</td><td>%d</td><td>%s</td></tr>`,
					cfg.prefix,
					html.EscapeString(s.ID),
					html.EscapeString(sessionLabel(s.Name, s.ID)),
					html.EscapeString(string(s.State)),
					s.PlayerCount,
					html.EscapeString(s.CurrentPlayerName),
				)
			}
			body.WriteString(`</tbody></table>`)
		}

		body.WriteString(`</main></body></html>`)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		written, err := w.Write([]byte(body.String()))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Home page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func sessionLabel(name, id string) string {
	if name != "" {
		return name
	}

	return id
}

func serveHealthCheck(cfg *Config, sm *SessionManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		if err := sm.ping(r.Context()); err != nil {
			cfg.logger.Warn("health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Unavailable\n"))

			return
		}

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveAssets(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		fname := "assets/" + path.Base(p.ByName("filepath"))

		data, err := assets.ReadFile(fname)
		if err != nil {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		switch strings.ToLower(path.Ext(fname)) {
		case ".css":
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		case ".js":
			w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		case ".html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}

		_, err = w.Write(data)
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: ` + cfg.prefix + `/api/
Disallow: ` + cfg.prefix + `/trickortreat/
`

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
