/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"net/http/pprof"

	"github.com/julienschmidt/httprouter"
)

func registerProfileHandlers(cfg *Config, mux *httprouter.Router) {
	base := cfg.prefix + "/pprof/"

	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handler(http.MethodGet, base+name, pprof.Handler(name))
	}

	mux.HandlerFunc(http.MethodGet, base+"cmdline", pprof.Cmdline)
	mux.HandlerFunc(http.MethodGet, base+"profile", pprof.Profile)
	mux.HandlerFunc(http.MethodGet, base+"symbol", pprof.Symbol)
	mux.HandlerFunc(http.MethodGet, base+"trace", pprof.Trace)

	logf(cfg, "PROFILE: Registered pprof handlers under %s", base)
}
