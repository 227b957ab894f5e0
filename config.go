package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	allowedOrigins []string
	bind           string
	gracePeriod    time.Duration
	maxPlayers     int
	port           int
	prefix         string
	profile        bool
	questionsFile  string
	roomTimeout    time.Duration
	tallyDelay     time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	// graceTick is the interval between grace-period countdown broadcasts.
	// Not a flag; tests shrink it alongside gracePeriod.
	graceTick time.Duration
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxPlayers < minPlayers {
		return fmt.Errorf("invalid max-players (must be at least %d): %d", minPlayers, c.maxPlayers)
	}
	if c.gracePeriod < time.Second {
		return fmt.Errorf("invalid grace-period (must be at least 1s): %s", c.gracePeriod)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// tick returns the grace-period countdown interval.
func (c *Config) tick() time.Duration {
	if c.graceTick > 0 {
		return c.graceTick
	}
	return time.Second
}

// originAllowed reports whether the given Origin header value may open
// a websocket. An empty list or a "*" entry allows any origin.
func (c *Config) originAllowed(origin string) bool {
	if len(c.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range c.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ANOMALY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "anomaly",
		Short:         "A social deduction trivia party game, served from a single binary.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			if cfg.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			return ServePage(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringSliceVar(&cfg.allowedOrigins, "allowed-origins", nil, "origins allowed to open websockets, empty or * for any (env: ANOMALY_ALLOWED_ORIGINS)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: ANOMALY_BIND)")
	fs.DurationVar(&cfg.gracePeriod, "grace-period", 10*time.Second, "answer grace period once half the humans have answered (env: ANOMALY_GRACE_PERIOD)")
	fs.IntVar(&cfg.maxPlayers, "max-players", maxPlayers, "maximum players per room (env: ANOMALY_MAX_PLAYERS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: ANOMALY_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: ANOMALY_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: ANOMALY_PROFILE)")
	fs.StringVar(&cfg.questionsFile, "questions", "", "path to a JSON file of additional question pairs (env: ANOMALY_QUESTIONS)")
	fs.DurationVar(&cfg.roomTimeout, "room-timeout", 60*time.Minute, "time before idle rooms are ended, 0 to disable (env: ANOMALY_ROOM_TIMEOUT)")
	fs.DurationVar(&cfg.tallyDelay, "tally-delay", 1500*time.Millisecond, "pause between the final vote and the reveal (env: ANOMALY_TALLY_DELAY)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: ANOMALY_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: ANOMALY_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: ANOMALY_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: ANOMALY_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("anomaly v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
