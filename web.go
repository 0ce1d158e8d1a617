package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Seednode/trickortreat/games/trickortreat"
	"github.com/Seednode/trickortreat/games/trickortreat/postgres"
	"github.com/go-chi/cors"
	"github.com/julienschmidt/httprouter"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; connect-src 'self' ws: wss:; img-src 'self' data:")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func humanReadableSize(bytes int64) string {
	const unit = 1000

	if bytes < unit {
		return strconv.FormatInt(bytes, 10) + " B"
	}

	size := float64(bytes)
	suffix := -1
	for size >= unit && suffix < len("kMGTPE")-1 {
		size /= unit
		suffix++
	}

	return fmt.Sprintf("%.1f %cB", size, "kMGTPE"[suffix])
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("trickortreat v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// openRepository picks PostgreSQL when a database url is configured, and
// in-process storage otherwise.
func openRepository(ctx context.Context, cfg *Config) (trickortreat.Repository, func(), error) {
	if cfg.databaseURL == "" {
		cfg.logger.Info("using in-memory storage, sessions will not survive a restart")

		return trickortreat.NewMemoryRepository(), func() {}, nil
	}

	repo, err := postgres.New(ctx, cfg.databaseURL)
	if err != nil {
		return nil, nil, err
	}

	if cfg.migrate {
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()

			return nil, nil, err
		}

		cfg.logger.Info("database schema is up to date")
	}

	return repo, repo.Close, nil
}

func newRouter(cfg *Config, sm *SessionManager, errs chan<- error) http.Handler {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		cfg.logger.Error("panic while serving request", "path", r.URL.Path, "panic", i)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		_, _ = io.WriteString(w, newPage(cfg, "Server Error", "An error has occurred. Please try again."))
	}

	mux.GET(cfg.prefix+"/", serveHomePage(cfg, sm, errs))

	mux.GET(cfg.prefix+"/assets/*filepath", serveAssets(cfg, errs))

	mux.GET(cfg.prefix+"/favicons/*favicon", serveFavicons(cfg, errs))

	mux.GET(cfg.prefix+"/favicon.svg", serveFavicons(cfg, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, sm, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	registerTrickOrTreat(cfg, "/trickortreat", sm, mux)

	registerAPI(cfg, sm, mux)

	if len(cfg.corsOrigins) == 0 {
		return mux
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})(mux)
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logf(cfg, "START: trickortreat v%s", releaseVersion)

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	sm := newSessionManager(ctx, repo, cfg.rules(), cfg.sessionTimeout, cfg.logger)

	errs := make(chan error, 64)
	go func() {
		for {
			select {
			case err := <-errs:
				cfg.logger.Warn("failed to write response", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newRouter(cfg, sm, errs),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	go func() {
		var err error

		logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)

		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			cfg.logger.Error("server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	sm.closeAll()

	return nil
}
