package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	adminPassword string
	bind          string
	databaseDSN   string
	betweenRounds time.Duration
	playerGrace   time.Duration
	port          int
	prefix        string
	profile       bool
	purgeAfter    time.Duration
	purgeInterval time.Duration
	redisAddr     string
	tlsCert       string
	tlsKey        string
	verbose       bool
	version       bool

	songDuration        int
	answerTimer         int
	numChoices          int
	pointsTitle         int
	pointsArtist        int
	levenshteinDistance int
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.songDuration < 1 {
		return fmt.Errorf("invalid song duration (must be positive): %d", c.songDuration)
	}
	if c.answerTimer < 1 {
		return fmt.Errorf("invalid answer timer (must be positive): %d", c.answerTimer)
	}
	if c.numChoices < 2 {
		return fmt.Errorf("invalid choice count (must be at least 2): %d", c.numChoices)
	}
	if c.levenshteinDistance < 0 {
		return fmt.Errorf("invalid levenshtein distance (must not be negative): %d", c.levenshteinDistance)
	}
	if c.purgeInterval < time.Minute {
		return fmt.Errorf("invalid purge interval (must be at least 1m): %s", c.purgeInterval)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// systemParams is the bottom layer of parameter resolution; mode defaults
// and round overrides stack on top.
func (c *Config) systemParams() ModeParams {
	return ModeParams{
		SongDuration:        c.songDuration,
		AnswerTimer:         c.answerTimer,
		NumChoices:          c.numChoices,
		PointsTitle:         c.pointsTitle,
		PointsArtist:        c.pointsArtist,
		PenaltyEnabled:      false,
		PenaltyAmount:       0,
		AllowRebuzz:         true,
		ManualValidation:    false,
		FuzzyMatch:          true,
		LevenshteinDistance: c.levenshteinDistance,
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("TUNECLASH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "tuneclash",
		Short:         "A real-time multiplayer blind-test quiz server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.adminPassword, "admin-password", "", "password protecting the song library endpoints; empty disables them (env: TUNECLASH_ADMIN_PASSWORD)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: TUNECLASH_BIND)")
	fs.DurationVar(&cfg.betweenRounds, "between-rounds", 0, "auto-advance delay between rounds; 0 waits for the master (env: TUNECLASH_BETWEEN_ROUNDS)")
	fs.StringVar(&cfg.databaseDSN, "database-dsn", "", "postgres connection string; empty uses in-memory storage (env: TUNECLASH_DATABASE_DSN)")
	fs.DurationVar(&cfg.playerGrace, "player-grace", 30*time.Second, "time a disconnected player may reconnect before the room is told (env: TUNECLASH_PLAYER_GRACE)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: TUNECLASH_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: TUNECLASH_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: TUNECLASH_PROFILE)")
	fs.DurationVar(&cfg.purgeAfter, "purge-after", 24*time.Hour, "retention for finished and abandoned rooms (env: TUNECLASH_PURGE_AFTER)")
	fs.DurationVar(&cfg.purgeInterval, "purge-interval", 15*time.Minute, "how often stale rooms are purged (env: TUNECLASH_PURGE_INTERVAL)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "", "redis address for lobby mirroring; empty disables it (env: TUNECLASH_REDIS_ADDR)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: TUNECLASH_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: TUNECLASH_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: TUNECLASH_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: TUNECLASH_VERSION)")

	fs.IntVar(&cfg.songDuration, "song-duration", 30, "default clip length in seconds (env: TUNECLASH_SONG_DURATION)")
	fs.IntVar(&cfg.answerTimer, "answer-timer", 5, "default seconds to answer after a buzz (env: TUNECLASH_ANSWER_TIMER)")
	fs.IntVar(&cfg.numChoices, "num-choices", 4, "default choice count for multiple-choice questions (env: TUNECLASH_NUM_CHOICES)")
	fs.IntVar(&cfg.pointsTitle, "points-title", 1, "default points for a correct title (env: TUNECLASH_POINTS_TITLE)")
	fs.IntVar(&cfg.pointsArtist, "points-artist", 1, "default points for a correct artist (env: TUNECLASH_POINTS_ARTIST)")
	fs.IntVar(&cfg.levenshteinDistance, "levenshtein-distance", 2, "default edit-distance tolerance for typed answers (env: TUNECLASH_LEVENSHTEIN_DISTANCE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("tuneclash v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
