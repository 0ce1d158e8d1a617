/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Seednode/trickortreat/games/trickortreat"
	"github.com/julienschmidt/httprouter"
)

const maxBodySize = 64 << 10

type createSessionRequest struct {
	Name    string   `json:"name"`
	Players []string `json:"players"`
}

type addPlayerRequest struct {
	Name string `json:"name"`
}

type setPlayerRequest struct {
	PlayerID string `json:"player_id"`
}

type selectQuizRequest struct {
	QuizID string `json:"quiz_id"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, r *http.Request, status int, v any) {
	startTime := time.Now()

	data, err := json.Marshal(v)
	if err != nil {
		cfg.logger.Error("encode response", "path", r.URL.Path, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	written, err := w.Write(append(data, '\n'))
	if err != nil {
		cfg.logger.Warn("failed to write response", "path", r.URL.Path, "error", err)

		return
	}

	logf(cfg, "API: %s %s %d (%s) to %s in %s",
		r.Method,
		r.URL.Path,
		status,
		humanReadableSize(int64(written)),
		realIP(r),
		time.Since(startTime).Round(time.Microsecond),
	)
}

func writeError(cfg *Config, w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		cfg.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	writeJSON(cfg, w, r, status, errorBody(err))
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	return nil
}

// withStore resolves :sessionid to its loaded store before calling fn.
func withStore(cfg *Config, sm *SessionManager, fn func(http.ResponseWriter, *http.Request, httprouter.Params, *trickortreat.SessionStore)) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		store, err := sm.store(r.Context(), p.ByName("sessionid"))
		if err != nil {
			writeError(cfg, w, r, err)

			return
		}

		fn(w, r, p, store)
	}
}

func listSessions(cfg *Config, sm *SessionManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		sessions, err := sm.turns.ListSessions(r.Context())
		if err != nil {
			writeError(cfg, w, r, err)

			return
		}

		if sessions == nil {
			sessions = []trickortreat.SessionSummary{}
		}

		writeJSON(cfg, w, r, http.StatusOK, sessions)
	}
}

func createSession(cfg *Config, sm *SessionManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req createSessionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(cfg, w, r, err)

			return
		}

		store, err := sm.create(r.Context(), req.Name, req.Players)
		if err != nil {
			writeError(cfg, w, r, err)

			return
		}

		writeJSON(cfg, w, r, http.StatusCreated, store.State())
	}
}

func getSession(cfg *Config, sm *SessionManager) httprouter.Handle {
	return withStore(cfg, sm, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, store *trickortreat.SessionStore) {
		writeJSON(cfg, w, r, http.StatusOK, store.State())
	})
}

func getLeaderboard(cfg *Config, sm *SessionManager) httprouter.Handle {
	board := trickortreat.NewProjector(sm.repo)

	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		entries, err := board.Leaderboard(r.Context(), p.ByName("sessionid"))
		if err != nil {
			writeError(cfg, w, r, err)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, entries)
	}
}

func getStatus(cfg *Config, sm *SessionManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		status, err := sm.turns.Status(r.Context(), p.ByName("sessionid"))
		if err != nil {
			writeError(cfg, w, r, err)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, status)
	}
}

func addPlayer(cfg *Config, sm *SessionManager) httprouter.Handle {
	return withStore(cfg, sm, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, store *trickortreat.SessionStore) {
		var req addPlayerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(cfg, w, r, err)

			return
		}

		player, err := store.AddPlayer(r.Context(), req.Name)
		if err != nil {
			writeError(cfg, w, r, err)

			return
		}

		writeJSON(cfg, w, r, http.StatusCreated, player)
	})
}

func getPlayer(cfg *Config, sm *SessionManager) httprouter.Handle {
	return withStore(cfg, sm, func(w http.ResponseWriter, r *http.Request, p httprouter.Params, store *trickortreat.SessionStore) {
		activity, err := store.PlayerActivity(r.Context(), p.ByName("playerid"))
		if err != nil {
			writeError(cfg, w, r, err)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, activity)
	})
}

func nextTurn(cfg *Config, sm *SessionManager) httprouter.Handle {
	return withStore(cfg, sm, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, store *trickortreat.SessionStore) {
		if _, err := store.NextTurn(r.Context()); err != nil {
			writeError(cfg, w, r, err)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, store.State())
	})
}

func setTurn(cfg *Config, sm *SessionManager) httprouter.Handle {
	return withStore(cfg, sm, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, store *trickortreat.SessionStore) {
		var req setPlayerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(cfg, w, r, err)

			return
		}

		if err := store.SetCurrentPlayer(r.Context(), req.PlayerID); err != nil {
			writeError(cfg, w, r, err)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, store.State())
	})
}

func startTurn(cfg *Config, sm *SessionManager) httprouter.Handle {
	return withStore(cfg, sm, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, store *trickortreat.SessionStore) {
		res, err := store.StartTurn(r.Context())
		if err != nil {
			writeError(cfg, w, r, err)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, res)
	})
}

// transition serves pause, resume and end.
func transition(cfg *Config, sm *SessionManager, fn func(*trickortreat.SessionStore, context.Context) error) httprouter.Handle {
	return withStore(cfg, sm, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, store *trickortreat.SessionStore) {
		if err := fn(store, r.Context()); err != nil {
			writeError(cfg, w, r, err)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, store.State())
	})
}

type selectFunc func(store *trickortreat.SessionStore, r *http.Request, playerID, quizID string) (*trickortreat.ActionResult, error)

func selectQuiz(cfg *Config, sm *SessionManager, fn selectFunc) httprouter.Handle {
	return withStore(cfg, sm, func(w http.ResponseWriter, r *http.Request, p httprouter.Params, store *trickortreat.SessionStore) {
		var req selectQuizRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(cfg, w, r, err)

			return
		}

		res, err := fn(store, r, p.ByName("playerid"), req.QuizID)
		if err != nil {
			writeError(cfg, w, r, err)

			return
		}

		writeJSON(cfg, w, r, http.StatusCreated, res)
	})
}

type resolveFunc func(store *trickortreat.SessionStore, r *http.Request, playerID, itemID string) (*trickortreat.ActionResult, error)

func resolveItem(cfg *Config, sm *SessionManager, param string, fn resolveFunc) httprouter.Handle {
	return withStore(cfg, sm, func(w http.ResponseWriter, r *http.Request, p httprouter.Params, store *trickortreat.SessionStore) {
		res, err := fn(store, r, p.ByName("playerid"), p.ByName(param))
		if err != nil {
			writeError(cfg, w, r, err)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, res)
	})
}

func registerAPI(cfg *Config, sm *SessionManager, mux *httprouter.Router) {
	base := cfg.prefix + "/api/sessions"
	session := base + "/:sessionid"
	player := session + "/players/:playerid"

	mux.GET(base, listSessions(cfg, sm))
	mux.POST(base, createSession(cfg, sm))

	mux.GET(session, getSession(cfg, sm))
	mux.GET(session+"/leaderboard", getLeaderboard(cfg, sm))
	mux.GET(session+"/status", getStatus(cfg, sm))

	mux.POST(session+"/players", addPlayer(cfg, sm))
	mux.GET(player, getPlayer(cfg, sm))

	mux.POST(session+"/turn/next", nextTurn(cfg, sm))
	mux.PUT(session+"/turn", setTurn(cfg, sm))
	mux.POST(session+"/turn/start", startTurn(cfg, sm))

	mux.POST(session+"/pause", transition(cfg, sm, (*trickortreat.SessionStore).Pause))
	mux.POST(session+"/resume", transition(cfg, sm, (*trickortreat.SessionStore).Resume))
	mux.POST(session+"/end", transition(cfg, sm, (*trickortreat.SessionStore).End))

	mux.POST(player+"/tricks", selectQuiz(cfg, sm, func(s *trickortreat.SessionStore, r *http.Request, playerID, quizID string) (*trickortreat.ActionResult, error) {
		return s.SelectNewTrick(r.Context(), playerID, quizID)
	}))
	mux.POST(player+"/treats", selectQuiz(cfg, sm, func(s *trickortreat.SessionStore, r *http.Request, playerID, quizID string) (*trickortreat.ActionResult, error) {
		return s.SelectNewTreat(r.Context(), playerID, quizID)
	}))

	mux.POST(player+"/tricks/:trickid/desert", resolveItem(cfg, sm, "trickid", func(s *trickortreat.SessionStore, r *http.Request, playerID, trickID string) (*trickortreat.ActionResult, error) {
		return s.DesertTrick(r.Context(), playerID, trickID)
	}))
	mux.POST(player+"/treats/:treatid/complete", resolveItem(cfg, sm, "treatid", func(s *trickortreat.SessionStore, r *http.Request, playerID, treatID string) (*trickortreat.ActionResult, error) {
		return s.CompleteTreat(r.Context(), playerID, treatID)
	}))
	mux.POST(player+"/treats/:treatid/desert", resolveItem(cfg, sm, "treatid", func(s *trickortreat.SessionStore, r *http.Request, playerID, treatID string) (*trickortreat.ActionResult, error) {
		return s.DesertTreat(r.Context(), playerID, treatID)
	}))

	logf(cfg, "API: Registered session api at %s", base)
}
