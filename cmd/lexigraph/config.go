package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/japaniel/lexigraph/pkg/export"
	"github.com/japaniel/lexigraph/pkg/graph"
	"github.com/japaniel/lexigraph/pkg/neo4jdb"
)

const (
	defaultWorkers = 1
	defaultLogMode = "dev"
)

// ErrUsage is returned when the snapshot path is missing or ambiguous.
var ErrUsage = errors.New("exactly one snapshot path is required")

type Config struct {
	neo4jdb.Config `yaml:",inline"`

	ProgressEvery int      `yaml:"progress_every"`
	Workers       int      `yaml:"workers"`
	SensePolicy   string   `yaml:"sense_policy"`
	EdgePolicy    string   `yaml:"edge_policy"`
	Journal       string   `yaml:"journal"`
	RedisAddr     string   `yaml:"redis_addr"`
	MetricsAddr   string   `yaml:"metrics_addr"`
	LogMode       string   `yaml:"log_mode"`
	CacheDir      string   `yaml:"cache_dir"`
	DryRun        bool     `yaml:"dry_run"`
	IDs           []string `yaml:"ids"`

	ConfigPath string `yaml:"-"`
	Rerun      string `yaml:"-"`
	Snapshot   string `yaml:"-"`
}

func defaultConfig() Config {
	return Config{
		Config: neo4jdb.Config{
			URI:         neo4jdb.DefaultURI,
			User:        neo4jdb.DefaultUser,
			Timeout:     neo4jdb.DefaultTimeout,
			MaxPoolSize: neo4jdb.DefaultMaxPoolSize,
		},
		ProgressEvery: export.DefaultProgressEvery,
		Workers:       defaultWorkers,
		SensePolicy:   graph.SenseMatch.String(),
		EdgePolicy:    graph.EdgeCreate.String(),
		LogMode:       defaultLogMode,
	}
}

// LoadConfig layers defaults, the YAML file named by -config (or
// LEXIGRAPH_CONFIG), environment variables and flags, in that order.
func LoadConfig(args []string) (Config, error) {
	cfg := defaultConfig()

	cfg.ConfigPath = configPathFromArgs(args, os.Getenv("LEXIGRAPH_CONFIG"))
	if cfg.ConfigPath != "" {
		if err := loadFile(cfg.ConfigPath, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs := newFlagSet(&cfg)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() != 1 {
		return Config{}, ErrUsage
	}
	cfg.Snapshot = strings.TrimSpace(fs.Arg(0))
	if cfg.Snapshot == "" {
		return Config{}, ErrUsage
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// idList is a comma separated flag value.
type idList []string

func (l *idList) String() string { return strings.Join(*l, ",") }

func (l *idList) Set(v string) error {
	*l = nil
	for _, id := range strings.Split(v, ",") {
		if id = strings.TrimSpace(id); id != "" {
			*l = append(*l, id)
		}
	}
	return nil
}

func newFlagSet(cfg *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("lexigraph", flag.ContinueOnError)
	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "path to YAML config file")
	fs.StringVar(&cfg.URI, "uri", cfg.URI, "graph store URI")
	fs.StringVar(&cfg.User, "user", cfg.User, "graph store user")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "graph store password (prefer NEO4J_PASSWORD)")
	fs.StringVar(&cfg.Database, "database", cfg.Database, "graph database name (empty for the server default)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "connect timeout")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of concurrent sense writers")
	fs.IntVar(&cfg.ProgressEvery, "progress-every", cfg.ProgressEvery, "senses between progress reports")
	fs.StringVar(&cfg.SensePolicy, "sense-policy", cfg.SensePolicy, "sense write policy: match|create")
	fs.StringVar(&cfg.EdgePolicy, "edge-policy", cfg.EdgePolicy, "relationship write policy: create|merge")
	fs.StringVar(&cfg.Journal, "journal", cfg.Journal, "path to SQLite failure journal")
	fs.StringVar(&cfg.Rerun, "rerun", cfg.Rerun, "re-export only the senses that failed in this journal run id")
	fs.Var((*idList)(&cfg.IDs), "ids", "comma separated sense identifiers to export")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address for cross-process identity locks")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve prometheus metrics on this address")
	fs.StringVar(&cfg.LogMode, "log-mode", cfg.LogMode, "log mode: dev|prod")
	fs.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "directory for downloaded snapshots")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "write to an in-memory graph instead of the graph store")
	return fs
}

func printUsage(w io.Writer) {
	cfg := defaultConfig()
	fs := newFlagSet(&cfg)
	fs.SetOutput(w)
	fmt.Fprintln(w, "usage: lexigraph [flags] <snapshot.json|snapshot.db|https://...>")
	fs.PrintDefaults()
}

// configPathFromArgs finds -config before the full parse so the file can be
// layered under environment and flags.
func configPathFromArgs(args []string, fallback string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			break
		}
		if !strings.HasPrefix(a, "-") {
			continue
		}
		name := strings.TrimLeft(a, "-")
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return fallback
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.URI, "NEO4J_URI")
	setString(&cfg.User, "NEO4J_USER")
	setString(&cfg.Password, "NEO4J_PASSWORD")
	setString(&cfg.Database, "NEO4J_DATABASE")
	setString(&cfg.SensePolicy, "LEXIGRAPH_SENSE_POLICY")
	setString(&cfg.EdgePolicy, "LEXIGRAPH_EDGE_POLICY")
	setString(&cfg.Journal, "LEXIGRAPH_JOURNAL")
	setString(&cfg.RedisAddr, "LEXIGRAPH_REDIS_ADDR")
	setString(&cfg.MetricsAddr, "LEXIGRAPH_METRICS_ADDR")
	setString(&cfg.LogMode, "LEXIGRAPH_LOG_MODE")
	setString(&cfg.CacheDir, "LEXIGRAPH_CACHE_DIR")

	if err := setInt(&cfg.Workers, "LEXIGRAPH_WORKERS"); err != nil {
		return err
	}
	if err := setInt(&cfg.ProgressEvery, "LEXIGRAPH_PROGRESS_EVERY"); err != nil {
		return err
	}
	if v := os.Getenv("LEXIGRAPH_DRY_RUN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LEXIGRAPH_DRY_RUN: %w", err)
		}
		cfg.DryRun = b
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func (c Config) validate() error {
	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	if c.ProgressEvery < 1 {
		return errors.New("progress-every must be positive")
	}
	if _, err := graph.ParseSensePolicy(c.SensePolicy); err != nil {
		return err
	}
	if _, err := graph.ParseEdgePolicy(c.EdgePolicy); err != nil {
		return err
	}
	switch c.LogMode {
	case "dev", "prod":
	default:
		return fmt.Errorf("unsupported log mode: %s", c.LogMode)
	}
	if c.Rerun != "" && c.Journal == "" {
		return errors.New("rerun requires a journal")
	}
	if c.Rerun != "" && len(c.IDs) > 0 {
		return errors.New("rerun and ids are mutually exclusive")
	}
	return nil
}

// Mapper returns the graph mapper for the configured policies.
func (c Config) Mapper() graph.Mapper {
	sp, _ := graph.ParseSensePolicy(c.SensePolicy)
	ep, _ := graph.ParseEdgePolicy(c.EdgePolicy)
	return graph.Mapper{SensePolicy: sp, EdgePolicy: ep}
}
