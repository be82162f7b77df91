package neo4jdb

import (
	"context"
	"testing"
	"time"

	"github.com/japaniel/lexigraph/pkg/logger"
)

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	if c.URI != DefaultURI || c.User != DefaultUser || c.Timeout != DefaultTimeout || c.MaxPoolSize != DefaultMaxPoolSize {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	c = Config{URI: "neo4j://graph:7687", User: "admin", Timeout: time.Second, MaxPoolSize: 4}.withDefaults()
	if c.URI != "neo4j://graph:7687" || c.User != "admin" || c.Timeout != time.Second || c.MaxPoolSize != 4 {
		t.Fatalf("explicit values overridden: %+v", c)
	}
}

func TestNewRequiresLogger(t *testing.T) {
	if _, err := New(context.Background(), Config{}, nil); err == nil {
		t.Fatal("expected error without logger")
	}
}

func TestNewRejectsUnknownScheme(t *testing.T) {
	_, err := New(context.Background(), Config{URI: "http://localhost:7474"}, logger.NewNop())
	if err == nil {
		t.Fatal("expected driver init error for http scheme")
	}
}

func TestNewFailsWhenStoreUnreachable(t *testing.T) {
	cfg := Config{URI: "bolt://127.0.0.1:1", Password: "x", Timeout: 500 * time.Millisecond}
	_, err := New(context.Background(), cfg, logger.NewNop())
	if err == nil {
		t.Fatal("expected connectivity error")
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("close nil client: %v", err)
	}
}
