package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/japaniel/lexigraph/pkg/export"
	"github.com/japaniel/lexigraph/pkg/journal"
	"github.com/japaniel/lexigraph/pkg/logger"
	"github.com/japaniel/lexigraph/pkg/neo4jdb"
	"github.com/japaniel/lexigraph/pkg/snapshot"
	"github.com/japaniel/lexigraph/pkg/store"
)

// Exit codes.
const (
	exitOK           = 0
	exitFatal        = 1
	exitUnitFailures = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := LoadConfig(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(stdout)
			return exitOK
		}
		fmt.Fprintf(stderr, "lexigraph: %v\n", err)
		printUsage(stderr)
		return exitFatal
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(stderr, "lexigraph: init logger: %v\n", err)
		return exitFatal
	}
	defer log.Sync()

	path := cfg.Snapshot
	if snapshot.IsRemote(path) {
		f := &snapshot.Fetcher{CacheDir: cfg.CacheDir}
		if path, err = f.Ensure(ctx, cfg.Snapshot); err != nil {
			log.Error("failed to download snapshot", "url", cfg.Snapshot, "error", err)
			return exitFatal
		}
	}
	loadStart := time.Now()
	snap, err := snapshot.Open(path)
	if err != nil {
		log.Error("failed to load snapshot", "path", path, "error", err)
		return exitFatal
	}
	log.Info("snapshot loaded", "path", path, "senses", snap.Len(), "elapsed", time.Since(loadStart).Round(time.Millisecond))

	var (
		st  store.Store
		mem *store.MemStore
	)
	if cfg.DryRun {
		mem = store.NewMemStore()
		st = mem
		log.Info("dry run: writing to an in-memory graph")
	} else {
		client, err := neo4jdb.New(ctx, cfg.Config, log)
		if err != nil {
			log.Error("failed to connect to graph store", "uri", cfg.URI, "error", err)
			return exitFatal
		}
		defer client.Close(context.Background())
		ns := store.NewNeo4jStore(client, cfg.Workers, log)
		ns.EnsureSchema(ctx)
		st = ns
	}
	defer st.Close(context.Background())

	ex := export.NewExporter(st, snap)
	ex.Mapper = cfg.Mapper()
	ex.Workers = cfg.Workers
	ex.ProgressEvery = cfg.ProgressEvery
	ex.Logger = log
	if len(cfg.IDs) > 0 {
		ex.IDs = cfg.IDs
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ex.Metrics = export.NewMetrics(reg)
	if cfg.MetricsAddr != "" {
		stop, err := serveMetrics(cfg.MetricsAddr, reg, log)
		if err != nil {
			log.Error("failed to start metrics server", "addr", cfg.MetricsAddr, "error", err)
			return exitFatal
		}
		defer stop()
	}

	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			log.Error("failed to reach redis", "addr", cfg.RedisAddr, "error", err)
			return exitFatal
		}
		locker := export.NewRedisLocker(rc)
		locker.OnLeaseError = func(key string, err error) {
			log.Warn("identity lease error", "key", key, "error", err)
		}
		ex.Locker = locker
	}

	var (
		jrnl  *journal.Journal
		runID string
	)
	if cfg.Journal != "" {
		jrnl, err = journal.Open(cfg.Journal)
		if err != nil {
			log.Error("failed to open journal", "path", cfg.Journal, "error", err)
			return exitFatal
		}
		defer jrnl.Close()

		if cfg.Rerun != "" {
			ids, err := jrnl.FailedSenses(cfg.Rerun)
			if err != nil {
				log.Error("failed to read journal run", "run_id", cfg.Rerun, "error", err)
				return exitFatal
			}
			log.Info("re-exporting failed senses", "run_id", cfg.Rerun, "senses", len(ids))
			ex.IDs = ids
		}

		runID, err = jrnl.BeginRun(cfg.Snapshot)
		if err != nil {
			log.Error("failed to start journal run", "error", err)
			return exitFatal
		}
		ex.Failures = jrnl.Sink(runID)
	}

	sum, exportErr := ex.Export(ctx)

	if jrnl != nil {
		if err := jrnl.FinishRun(runID, sum); err != nil {
			log.Warn("failed to finish journal run", "run_id", runID, "error", err)
		}
	}

	fmt.Fprintf(stdout, "Export %d senses from %d took %s\n", sum.Processed, sum.Total, sum.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(stdout, "malformed=%d senses_failed=%d units_failed=%d dangling_links=%d rejected_relations=%d empty_values=%d\n",
		sum.Malformed, sum.SensesFailed, sum.UnitsFailed, sum.DanglingLinks, sum.RejectedRelations, sum.EmptyValues)
	if mem != nil {
		fmt.Fprintf(stdout, "dry run graph: lemmas=%d senses=%d relationships=%d\n",
			mem.CountNodes(store.LabelLemma), mem.CountNodes(store.LabelSense), mem.CountEdges(""))
	}
	if runID != "" {
		fmt.Fprintf(stdout, "journal run: %s\n", runID)
	}

	if exportErr != nil {
		log.Error("export stopped", "error", exportErr)
		return exitFatal
	}
	if sum.UnitsFailed > 0 {
		return exitUnitFailures
	}
	return exitOK
}

func serveMetrics(addr string, reg *prometheus.Registry, log *logger.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", "error", err)
		}
	}()
	log.Info("serving metrics", "addr", ln.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
