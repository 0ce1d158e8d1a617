/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/Seednode/trickortreat/games/trickortreat"
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose || cfg.logger == nil {
		return
	}

	cfg.logger.Debug(fmt.Sprintf(format, args...))
}

func newPage(cfg *Config, title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon(cfg))
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", html.EscapeString(title)))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"%s/\">%s</a></body></html>", cfg.prefix, html.EscapeString(body)))

	return htmlBody.String()
}

type apiError struct {
	Error           string `json:"error"`
	AlreadyDoneQuiz bool   `json:"already_done_quiz,omitempty"`
}

var errBadRequest = errors.New("bad request")

// statusFor maps an engine error onto the response status the api reports.
func statusFor(err error) int {
	var se *trickortreat.ScoringError

	switch {
	case errors.Is(err, trickortreat.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, trickortreat.ErrAlreadyDoneQuiz),
		errors.Is(err, trickortreat.ErrInvalidState),
		errors.Is(err, trickortreat.ErrNoTurnState):
		return http.StatusConflict
	case errors.Is(err, trickortreat.ErrInvalidInput),
		errors.Is(err, trickortreat.ErrNoPlayers),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &se):
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

func errorBody(err error) apiError {
	body := apiError{
		Error:           err.Error(),
		AlreadyDoneQuiz: errors.Is(err, trickortreat.ErrAlreadyDoneQuiz),
	}

	// Storage details stay in the log.
	if statusFor(err) >= http.StatusInternalServerError {
		body.Error = http.StatusText(statusFor(err))
	}

	return body
}
