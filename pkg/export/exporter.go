package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/japaniel/lexigraph/pkg/graph"
	"github.com/japaniel/lexigraph/pkg/lexicon"
	"github.com/japaniel/lexigraph/pkg/logger"
	"github.com/japaniel/lexigraph/pkg/snapshot"
	"github.com/japaniel/lexigraph/pkg/store"
)

const DefaultProgressEvery = 1000

// FailureSink receives every failed unit, e.g. to persist it for a later rerun.
type FailureSink interface {
	RecordFailure(ctx context.Context, ue *UnitError) error
}

// Summary describes a finished export.
type Summary struct {
	Total              int
	Processed          int
	Malformed          int
	Missing            int // requested identifiers absent from the snapshot
	LemmaSenseAttempts int
	UnitsFailed        int
	SensesFailed       int
	DanglingLinks      int
	RejectedRelations  int
	EmptyValues        int // options without a value and links without a target
	Elapsed            time.Duration
}

// Exporter writes a snapshot's senses to a Store.
type Exporter struct {
	Store    store.Store
	Snapshot *snapshot.Snapshot
	Mapper   graph.Mapper
	// IDs restricts the export to these sense identifiers when not nil.
	IDs []string

	// Workers > 1 writes senses concurrently.
	Workers int
	// ProgressEvery is the number of senses between progress reports.
	ProgressEvery int
	// Logger is used for warnings and progress. nil means no logging.
	Logger *logger.Logger
	// OnProgress is called with the number of handled senses and the total.
	OnProgress func(current, total int)

	Failures FailureSink
	// Locker serializes writers per node identity, across processes when it
	// is shared. Defaults to a KeyedMutex when Workers > 1.
	Locker  IdentityLocker
	Metrics *Metrics

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// NewExporter creates an Exporter with a sequential pass and the default progress interval.
func NewExporter(st store.Store, snap *snapshot.Snapshot) *Exporter {
	return &Exporter{
		Store:         st,
		Snapshot:      snap,
		Workers:       1,
		ProgressEvery: DefaultProgressEvery,
	}
}

// outcome is what exporting one sense contributed to the summary.
type outcome struct {
	started     bool
	malformed   bool
	attempted   bool
	failed      bool
	unitsFailed int
	dangling    int
	rejected    int
	empty       int
}

type tally struct {
	mu      sync.Mutex
	sum     Summary
	handled int
	every   int
	start   time.Time
	log     *logger.Logger
	notify  func(current, total int)
}

func (t *tally) add(o outcome) {
	if !o.started {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if o.malformed {
		t.sum.Malformed++
	} else {
		t.sum.Processed++
	}
	if o.attempted {
		t.sum.LemmaSenseAttempts++
	}
	if o.failed {
		t.sum.SensesFailed++
	}
	t.sum.UnitsFailed += o.unitsFailed
	t.sum.DanglingLinks += o.dangling
	t.sum.RejectedRelations += o.rejected
	t.sum.EmptyValues += o.empty

	t.handled++
	if t.handled%t.every == 0 {
		t.log.Info("senses exported", "count", t.handled, "total", t.sum.Total, "elapsed", time.Since(t.start).Round(time.Millisecond).String())
		if t.notify != nil {
			t.notify(t.handled, t.sum.Total)
		}
	}
}

// Export writes every selected sense and returns the summary. Individual
// sense failures are reported in the summary, not as an error; the error is
// non-nil only when ctx was canceled or the worker pool rejected a sense.
func (ex *Exporter) Export(ctx context.Context) (Summary, error) {
	log := ex.Logger
	if log == nil {
		log = logger.NewNop()
	}
	if ex.Store == nil || ex.Snapshot == nil {
		return Summary{}, errors.New("export: store and snapshot are required")
	}
	every := ex.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}

	records := ex.Snapshot.Senses()
	missing := 0
	if ex.IDs != nil {
		var absent []string
		records, absent = ex.Snapshot.Select(ex.IDs)
		for _, id := range absent {
			log.Warn("requested sense not in snapshot", "sense_id", id)
		}
		missing = len(absent)
	}

	t := &tally{every: every, start: time.Now(), log: log, notify: ex.OnProgress}
	t.sum.Total = len(records)
	t.sum.Missing = missing
	log.Info("export started", "senses", len(records), "workers", ex.workers(),
		"sense_policy", ex.Mapper.SensePolicy.String(), "edge_policy", ex.Mapper.EdgePolicy.String())

	var err error
	if ex.workers() <= 1 {
		err = ex.runSequential(ctx, records, t, log)
	} else {
		err = ex.runConcurrent(ctx, records, t, log)
	}

	t.mu.Lock()
	sum := t.sum
	t.mu.Unlock()
	sum.Elapsed = time.Since(t.start)
	if ex.OnProgress != nil && err == nil {
		ex.OnProgress(sum.Processed+sum.Malformed, sum.Total)
	}
	log.Info("export finished",
		"processed", sum.Processed,
		"total", sum.Total,
		"malformed", sum.Malformed,
		"senses_failed", sum.SensesFailed,
		"units_failed", sum.UnitsFailed,
		"dangling_links", sum.DanglingLinks,
		"rejected_relations", sum.RejectedRelations,
		"empty_values", sum.EmptyValues,
		"elapsed", sum.Elapsed.Round(time.Millisecond).String(),
	)
	return sum, err
}

func (ex *Exporter) workers() int {
	if ex.Workers <= 0 {
		return 1
	}
	return ex.Workers
}

func (ex *Exporter) runSequential(ctx context.Context, records []snapshot.SenseRecord, t *tally, log *logger.Logger) error {
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.add(ex.exportSense(ctx, rec, ex.Locker, log))
	}
	return nil
}

func (ex *Exporter) runConcurrent(ctx context.Context, records []snapshot.SenseRecord, t *tally, log *logger.Logger) error {
	workers := ex.workers()
	locker := ex.Locker
	if locker == nil {
		locker = NewKeyedMutex()
	}

	var wp WorkerPoolInterface
	if ex.PoolFactory != nil {
		wp = ex.PoolFactory(workers, workers*2)
	} else {
		wp = NewWorkerPool(workers, workers*2)
	}
	wp.Start(ctx)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			wp.Close()
			return err
		}
		rec := rec
		job := func(jctx context.Context) error {
			t.add(ex.exportSense(jctx, rec, locker, log))
			return nil
		}
		if err := wp.SubmitCtx(ctx, job); err != nil {
			wp.Close()
			if errors.Is(err, ctx.Err()) {
				return err
			}
			return fmt.Errorf("export: submit %s: %w", rec.ID, err)
		}
	}
	wp.Close()
	return ctx.Err()
}

// exportSense normalizes, maps and writes one record. Once the first unit is
// attempted the sequence runs to completion even if ctx is canceled, so a
// sense is never abandoned halfway through.
func (ex *Exporter) exportSense(ctx context.Context, rec snapshot.SenseRecord, locker IdentityLocker, log *logger.Logger) outcome {
	if ctx.Err() != nil {
		return outcome{}
	}
	o := outcome{started: true}

	entry, err := lexicon.Normalize(rec)
	if err != nil {
		log.Warn("skipping malformed record", "sense_id", rec.ID, "lemma", rec.Lemma, "error", err)
		ex.Metrics.sense("malformed")
		o.malformed = true
		return o
	}
	plan, err := ex.Mapper.Map(entry, ex.Snapshot)
	if err != nil {
		log.Warn("skipping malformed record", "sense_id", rec.ID, "lemma", rec.Lemma, "error", err)
		ex.Metrics.sense("malformed")
		o.malformed = true
		return o
	}

	for _, s := range plan.Skipped {
		switch s.Reason {
		case graph.SkipDanglingLink:
			o.dangling++
			log.Warn("link target not in snapshot", "sense_id", plan.SenseID, "rel_type", s.Type, "target", s.Value)
		case graph.SkipEmptyValue:
			o.empty++
			log.Warn("relation without a value", "sense_id", plan.SenseID, "kind", s.Kind, "rel_type", s.Type)
		default:
			o.rejected++
			log.Warn("relation type outside taxonomy", "sense_id", plan.SenseID, "kind", s.Kind, "rel_type", s.Type, "value", s.Value)
		}
		ex.Metrics.skipped(string(s.Reason))
	}

	if locker != nil {
		unlock, err := locker.Lock(ctx, plan.Identities())
		if err != nil {
			if ctx.Err() != nil {
				return outcome{}
			}
			ue := &UnitError{SenseID: plan.SenseID, Op: graph.OpLemmaSense, Target: entry.Lemma, Err: fmt.Errorf("lock identities: %w", err)}
			ex.reportFailure(ctx, ue, log)
			ex.Metrics.sense("failed")
			o.failed = true
			o.unitsFailed = 1
			return o
		}
		defer unlock()
	}

	started := time.Now()
	seq := Sequencer{
		Store: ex.Store,
		OnUnit: func(m graph.Mutation, err error) {
			if err != nil {
				ex.Metrics.unit(m.Op.String(), "error")
				return
			}
			ex.Metrics.unit(m.Op.String(), "ok")
			log.Debug("unit written", "sense_id", m.SenseID, "op", m.Op.String(), "rel_type", m.RelType)
		},
	}
	res := seq.Run(context.WithoutCancel(ctx), plan)
	ex.Metrics.observe(time.Since(started).Seconds())

	o.attempted = res.Attempts > 0
	for _, ue := range res.Errors {
		ex.reportFailure(ctx, ue, log)
	}
	o.unitsFailed = len(res.Errors)
	if !res.OK() {
		o.failed = true
		ex.Metrics.sense("failed")
	} else {
		ex.Metrics.sense("ok")
	}
	return o
}

func (ex *Exporter) reportFailure(ctx context.Context, ue *UnitError, log *logger.Logger) {
	log.Error("graph write failed",
		"sense_id", ue.SenseID,
		"op", ue.Op.String(),
		"rel_type", ue.RelType,
		"target", ue.Target,
		"error", ue.Err,
	)
	if ex.Failures == nil {
		return
	}
	if err := ex.Failures.RecordFailure(context.WithoutCancel(ctx), ue); err != nil {
		log.Warn("could not record failure", "sense_id", ue.SenseID, "error", err)
	}
}
