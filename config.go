package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	catalogMemory   = "memory"
	catalogSQLite   = "sqlite"
	catalogPostgres = "postgres"
)

var catalogKinds = []string{catalogMemory, catalogSQLite, catalogPostgres}

type Config struct {
	bind           string
	cacheTTL       time.Duration
	catalog        string
	databasePath   string
	databaseURL    string
	fetchTimeout   time.Duration
	port           int
	prefix         string
	profile        bool
	redisURL       string
	seed           bool
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if !slices.Contains(catalogKinds, c.catalog) {
		return fmt.Errorf("invalid catalog (must be one of %s): %q", strings.Join(catalogKinds, ", "), c.catalog)
	}
	if c.catalog == catalogSQLite && c.databasePath == "" {
		return errors.New("--database-path is required with --catalog sqlite")
	}
	if c.catalog == catalogPostgres && c.databaseURL == "" {
		return errors.New("--database-url is required with --catalog postgres")
	}
	if c.cacheTTL < 0 {
		return fmt.Errorf("invalid cache ttl (must not be negative): %s", c.cacheTTL)
	}
	if c.fetchTimeout <= 0 {
		return fmt.Errorf("invalid fetch timeout (must be positive): %s", c.fetchTimeout)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SIPPY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "sippy",
		Short:         "A party drinking game that deals tasks to players in turn.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: SIPPY_BIND)")
	fs.DurationVar(&cfg.cacheTTL, "cache-ttl", 5*time.Minute, "how long category task lists stay in redis, 0 to disable (env: SIPPY_CACHE_TTL)")
	fs.StringVar(&cfg.catalog, "catalog", catalogMemory, "task source: memory, sqlite, or postgres (env: SIPPY_CATALOG)")
	fs.StringVar(&cfg.databasePath, "database-path", "sippy.db", "sqlite database file (env: SIPPY_DATABASE_PATH)")
	fs.StringVar(&cfg.databaseURL, "database-url", "", "postgres connection url (env: SIPPY_DATABASE_URL)")
	fs.DurationVar(&cfg.fetchTimeout, "fetch-timeout", 10*time.Second, "time allowed for loading a category (env: SIPPY_FETCH_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: SIPPY_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: SIPPY_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: SIPPY_PROFILE)")
	fs.StringVar(&cfg.redisURL, "redis-url", "", "redis url for the task cache and game records (env: SIPPY_REDIS_URL)")
	fs.BoolVar(&cfg.seed, "seed", true, "fill an empty task table with the built-in tasks (env: SIPPY_SEED)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: SIPPY_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: SIPPY_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: SIPPY_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SIPPY_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: SIPPY_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("sippy v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
