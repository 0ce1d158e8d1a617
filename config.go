package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Seednode/trickortreat/games/trickortreat"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	corsOrigins    []string
	databaseURL    string
	migrate        bool
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	pointsPerTrick          int
	pointsPerCompletedTreat int
	pointsPerDesertedTreat  int
	maxActiveTricks         int
	maxPendingTreats        int

	logger *slog.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.sessionTimeout < 0 {
		return fmt.Errorf("invalid session timeout (must not be negative): %s", c.sessionTimeout)
	}
	if err := c.rules().Validate(); err != nil {
		return fmt.Errorf("invalid scoring rules: %w", err)
	}
	return nil
}

func (c *Config) rules() trickortreat.Rules {
	return trickortreat.Rules{
		PointsPerTrick:          c.pointsPerTrick,
		PointsPerCompletedTreat: c.pointsPerCompletedTreat,
		PointsPerDesertedTreat:  c.pointsPerDesertedTreat,
		MaxActiveTricks:         c.maxActiveTricks,
		MaxPendingTreats:        c.maxPendingTreats,
	}
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: logDate,
	}))
}

func newCmd(cfg *Config) *cobra.Command {
	// A missing .env file is fine; anything else is worth knowing about.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "unable to load .env: %v\n", err)
	}

	v := viper.New()
	v.SetEnvPrefix("TRICKORTREAT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "trickortreat",
		Short:         "Hosts trick or treat party game sessions, with live scoring and leaderboards.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			cfg.logger = newLogger(cfg.verbose)
			slog.SetDefault(cfg.logger)

			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: TRICKORTREAT_BIND)")
	fs.StringSliceVar(&cfg.corsOrigins, "cors-origin", nil, "origin allowed to call the api, repeatable (env: TRICKORTREAT_CORS_ORIGIN)")
	fs.StringVar(&cfg.databaseURL, "database-url", "", "postgres connection string, sessions are kept in memory when empty (env: TRICKORTREAT_DATABASE_URL)")
	fs.BoolVar(&cfg.migrate, "migrate", false, "create missing database tables on startup (env: TRICKORTREAT_MIGRATE)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: TRICKORTREAT_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: TRICKORTREAT_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: TRICKORTREAT_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle sessions are unloaded from memory (env: TRICKORTREAT_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: TRICKORTREAT_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: TRICKORTREAT_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: TRICKORTREAT_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: TRICKORTREAT_VERSION)")

	fs.IntVar(&cfg.pointsPerTrick, "points-per-trick", 1, "points each active trick earns per turn (env: TRICKORTREAT_POINTS_PER_TRICK)")
	fs.IntVar(&cfg.pointsPerCompletedTreat, "points-per-completed-treat", 1, "points awarded for a completed treat (env: TRICKORTREAT_POINTS_PER_COMPLETED_TREAT)")
	fs.IntVar(&cfg.pointsPerDesertedTreat, "points-per-deserted-treat", 1, "points deducted for a deserted treat (env: TRICKORTREAT_POINTS_PER_DESERTED_TREAT)")
	fs.IntVar(&cfg.maxActiveTricks, "max-active-tricks", 0, "active tricks allowed per player, 0 for unlimited (env: TRICKORTREAT_MAX_ACTIVE_TRICKS)")
	fs.IntVar(&cfg.maxPendingTreats, "max-pending-treats", 0, "pending treats allowed per player, 0 for unlimited (env: TRICKORTREAT_MAX_PENDING_TREATS)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("trickortreat v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
