package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/japaniel/lexigraph/pkg/graph"
	"github.com/japaniel/lexigraph/pkg/logger"
	"github.com/japaniel/lexigraph/pkg/neo4jdb"
)

// writeSession is the subset of neo4j.SessionWithContext used here.
type writeSession interface {
	ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork, configurers ...func(*neo4j.TransactionConfig)) (any, error)
	Run(ctx context.Context, cypher string, params map[string]any, configurers ...func(*neo4j.TransactionConfig)) (neo4j.ResultWithContext, error)
	Close(ctx context.Context) error
}

var ErrStoreClosed = errors.New("store closed")

var schemaStatements = []string{
	`CREATE CONSTRAINT lemma_name_unique IF NOT EXISTS FOR (l:Lemma) REQUIRE l.name IS UNIQUE`,
	`CREATE INDEX sense_name_gloss IF NOT EXISTS FOR (s:Sense) ON (s.name, s.gloss_text)`,
}

// Neo4jStore runs every mutation in its own write transaction. Sessions are
// acquired for the lifetime of the export and handed to one caller at a time;
// at most poolSize stay idle between calls.
type Neo4jStore struct {
	open func(ctx context.Context) writeSession
	log  *logger.Logger

	mu     sync.Mutex
	idle   []writeSession
	size   int
	closed bool
}

// NewNeo4jStore creates a store over client. poolSize bounds the idle sessions
// kept between calls and should match the number of concurrent writers.
func NewNeo4jStore(client *neo4jdb.Client, poolSize int, log *logger.Logger) *Neo4jStore {
	return newNeo4jStore(func(ctx context.Context) writeSession {
		return client.WriteSession(ctx)
	}, poolSize, log)
}

func newNeo4jStore(open func(ctx context.Context) writeSession, poolSize int, log *logger.Logger) *Neo4jStore {
	if poolSize <= 0 {
		poolSize = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Neo4jStore{open: open, size: poolSize, log: log.With("store", "neo4j")}
}

func (s *Neo4jStore) acquire(ctx context.Context) (writeSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if n := len(s.idle); n > 0 {
		sess := s.idle[n-1]
		s.idle = s.idle[:n-1]
		return sess, nil
	}
	return s.open(ctx), nil
}

func (s *Neo4jStore) release(ctx context.Context, sess writeSession) {
	s.mu.Lock()
	if !s.closed && len(s.idle) < s.size {
		s.idle = append(s.idle, sess)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	_ = sess.Close(ctx)
}

// EnsureSchema creates the Lemma uniqueness constraint and the Sense lookup
// index. Failures are logged and otherwise ignored.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) {
	sess, err := s.acquire(ctx)
	if err != nil {
		return
	}
	defer s.release(ctx, sess)
	for _, q := range schemaStatements {
		res, err := sess.Run(ctx, q, nil)
		if err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "statement", q, "error", err)
			continue
		}
		if _, err := res.Consume(ctx); err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "statement", q, "error", err)
		}
	}
}

// Apply runs m in a write transaction and waits for the commit.
func (s *Neo4jStore) Apply(ctx context.Context, m graph.Mutation) error {
	sess, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer s.release(ctx, sess)

	cypher, params := m.Cypher(), m.Params()
	_, err = sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("neo4j %s: %w", m.Op, err)
	}
	return nil
}

// Close releases every idle session. Sessions in use are closed when returned.
func (s *Neo4jStore) Close(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.idle = nil
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for _, sess := range idle {
		if err := sess.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
