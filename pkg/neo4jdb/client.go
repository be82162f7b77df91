package neo4jdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/japaniel/lexigraph/pkg/logger"
)

const (
	DefaultURI         = "bolt://localhost:7687"
	DefaultUser        = "neo4j"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxPoolSize = 50
)

// Config holds the connection settings for the graph store.
type Config struct {
	URI         string        `yaml:"uri"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	Database    string        `yaml:"database"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxPoolSize int           `yaml:"max_pool_size"`
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.URI) == "" {
		c.URI = DefaultURI
	}
	if strings.TrimSpace(c.User) == "" {
		c.User = DefaultUser
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = DefaultMaxPoolSize
	}
	return c
}

type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *logger.Logger
}

// New creates the driver and verifies connectivity. A store that cannot be
// reached is an error; the driver is closed before returning it.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, errors.New("neo4jdb: logger required")
	}
	cfg = cfg.withDefaults()

	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPoolSize
		c.SocketConnectTimeout = cfg.Timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: init driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jdb: verify connectivity to %s: %w", cfg.URI, err)
	}

	log.Info("connected to graph store", "uri", cfg.URI, "user", cfg.User, "database", cfg.Database)
	return &Client{
		Driver:   driver,
		Database: cfg.Database,
		log:      log.With("client", "Neo4jDB"),
	}, nil
}

// WriteSession opens a write-mode session on the configured database.
// Sessions are not safe for concurrent use; the caller closes it.
func (c *Client) WriteSession(ctx context.Context) neo4j.SessionWithContext {
	return c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.Database,
	})
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}
