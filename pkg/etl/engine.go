// Package etl runs the change-data-capture cycle: detect changed entities,
// rebuild the affected documents, write them to the search index and only then
// advance the persisted watermarks.
package etl

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/moviesearch/movies-etl/internal/metrics"
	"github.com/moviesearch/movies-etl/pkg/content"
	"github.com/moviesearch/movies-etl/pkg/retry"
	"github.com/moviesearch/movies-etl/pkg/search"
	"github.com/moviesearch/movies-etl/pkg/state"
)

const (
	defaultInterval  = 5 * time.Second
	defaultBatchSize = 100
)

// ErrEngineStopped is returned by Start once Stop has been called.
var ErrEngineStopped = errors.New("engine stopped")

// ChangeReader detects entities changed after a watermark
type ChangeReader interface {
	Changes(ctx context.Context, entity content.EntityType, since content.Watermark) (*content.ChangeSet, error)
}

// DocumentBuilder assembles index documents for a batch of ids
type DocumentBuilder interface {
	Build(ctx context.Context, entity content.EntityType, ids []uuid.UUID) ([]content.Document, error)
}

// IndexWriter writes documents to the search index
type IndexWriter interface {
	EnsureIndex(ctx context.Context, index string) error
	WriteBatch(ctx context.Context, index string, docs []content.Document) error
}

// CheckpointStore persists one watermark per entity type
type CheckpointStore interface {
	Watermark(ctx context.Context, entity content.EntityType) (content.Watermark, error)
	SetWatermark(ctx context.Context, entity content.EntityType, wm content.Watermark) error
}

// Status is the engine state
type Status string

const (
	StatusIdle    Status = "IDLE"
	StatusSyncing Status = "SYNCING"
)

// Config holds the polling settings
type Config struct {
	Interval  time.Duration
	BatchSize int
}

// CycleSummary describes the last finished cycle
type CycleSummary struct {
	StartedAt time.Time                  `json:"started_at"`
	Duration  string                     `json:"duration"`
	Changed   map[content.EntityType]int `json:"changed"`
	Indexed   map[string]int             `json:"indexed"`
	Advanced  []content.EntityType       `json:"advanced"`
	Error     string                     `json:"error,omitempty"`
}

// Engine orchestrates synchronization cycles
type Engine struct {
	config      Config
	reader      ChangeReader
	builder     DocumentBuilder
	writer      IndexWriter
	checkpoints CheckpointStore
	retrier     *retry.Retrier
	logger      *zap.Logger

	mu      sync.RWMutex
	status  Status
	ready   bool
	last    *CycleSummary
	started bool
	stopped bool
	err     error

	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine creates a new synchronization engine
func NewEngine(
	cfg Config,
	reader ChangeReader,
	builder DocumentBuilder,
	writer IndexWriter,
	checkpoints CheckpointStore,
	retrier *retry.Retrier,
	logger *zap.Logger,
) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Engine{
		config:      cfg,
		reader:      reader,
		builder:     builder,
		writer:      writer,
		checkpoints: checkpoints,
		retrier:     retrier,
		logger:      logger,
		status:      StatusIdle,
		stopCh:      make(chan struct{}),
	}
}

// Start runs a cycle immediately and then one every interval until Stop is
// called, ctx is canceled or a cycle fails. An engine runs once: Start fails
// when it was already started or stopped.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrEngineStopped
	}
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.started = true
	ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.logger.Info("Starting synchronization engine",
		zap.Duration("interval", e.config.Interval),
		zap.Int("batch_size", e.config.BatchSize))

	e.wg.Add(1)
	go e.loop(ctx)
	return nil
}

// Stop ends the polling loop, interrupting a running cycle, and waits for it.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.logger.Info("Stopping synchronization engine")
		close(e.stopCh)
		e.mu.Lock()
		e.stopped = true
		cancel := e.cancel
		e.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
	e.wg.Wait()
}

// Wait blocks until the polling loop ends and returns the error that ended it, if any.
func (e *Engine) Wait() error {
	e.wg.Wait()
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.err
}

// Status returns IDLE or SYNCING.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// IsReady reports whether a cycle has completed successfully.
func (e *Engine) IsReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// LastCycle returns the summary of the last finished cycle.
func (e *Engine) LastCycle() (CycleSummary, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return CycleSummary{}, false
	}
	return *e.last, true
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	for {
		if err := e.Sync(ctx); err != nil {
			if ctx.Err() != nil {
				e.logger.Info("Synchronization engine stopped")
				return
			}
			e.logger.Error("Synchronization failed, stopping engine", zap.Error(err))
			e.mu.Lock()
			e.err = err
			e.mu.Unlock()
			return
		}

		timer := time.NewTimer(e.config.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.logger.Info("Synchronization engine stopped")
			return
		case <-e.stopCh:
			timer.Stop()
			e.logger.Info("Synchronization engine stopped")
			return
		case <-timer.C:
		}
	}
}

// pending is the change set of one source type and the watermark it was read from.
type pending struct {
	cs       *content.ChangeSet
	since    content.Watermark
	advanced bool
}

// Sync runs exactly one cycle. A cycle keeps reading pages of changes until
// every entity type is caught up. Transient failures are retried according to
// the retry policy; a returned error means the cycle was abandoned and no
// watermark was moved past data that was not written.
func (e *Engine) Sync(ctx context.Context) error {
	e.setStatus(StatusSyncing)
	defer e.setStatus(StatusIdle)

	start := time.Now()
	summary := &CycleSummary{
		StartedAt: start.UTC(),
		Changed:   map[content.EntityType]int{},
		Indexed:   map[string]int{},
	}

	var err error
	for more := true; more && err == nil; {
		more, err = e.sync(ctx, summary)
	}

	elapsed := time.Since(start)
	summary.Duration = elapsed.String()
	metrics.SyncDuration.Observe(elapsed.Seconds())
	if err != nil {
		summary.Error = err.Error()
		metrics.SyncCyclesTotal.WithLabelValues("failure").Inc()
	} else {
		metrics.SyncCyclesTotal.WithLabelValues("success").Inc()
	}

	e.mu.Lock()
	e.last = summary
	if err == nil {
		e.ready = true
	}
	e.mu.Unlock()

	if err == nil && (len(summary.Indexed) > 0 || len(summary.Advanced) > 0) {
		e.logger.Info("Synchronization cycle completed",
			zap.Duration("duration", elapsed),
			zap.Any("indexed", summary.Indexed),
			zap.Any("advanced", summary.Advanced))
	}
	return err
}

func (e *Engine) sync(ctx context.Context, summary *CycleSummary) (bool, error) {
	sets := make([]*pending, 0, len(content.EntityTypes))
	targets := make(map[content.EntityType]content.IDSet, len(content.EntityTypes))
	for _, entity := range content.EntityTypes {
		targets[entity] = content.IDSet{}
	}

	more := false
	for _, entity := range content.EntityTypes {
		p, err := e.detect(ctx, entity)
		if err != nil {
			return false, err
		}
		sets = append(sets, p)
		more = more || p.cs.More
		for target, ids := range p.cs.IDs {
			targets[target].Union(ids)
		}
	}

	written := make(map[content.EntityType]bool, len(content.EntityTypes))
	for _, target := range content.EntityTypes {
		ids := targets[target]
		if len(ids) == 0 {
			continue
		}
		summary.Changed[target] += len(ids)
		metrics.ChangedEntities.WithLabelValues(target.String()).Add(float64(len(ids)))

		n, err := e.index(ctx, target, ids.Sorted())
		if err != nil {
			return false, err
		}
		if n > 0 {
			summary.Indexed[target.Index()] += n
		}
		written[target] = true

		if err := e.advance(ctx, sets, written, summary); err != nil {
			return false, err
		}
	}

	return more, nil
}

// detect loads the watermark of entity and queries what changed after it.
func (e *Engine) detect(ctx context.Context, entity content.EntityType) (*pending, error) {
	var since content.Watermark
	err := e.retrier.Do(ctx, "load_watermark", func(ctx context.Context) error {
		var err error
		since, err = e.checkpoints.Watermark(ctx, entity)
		return classify(err)
	})
	if err != nil {
		return nil, fmt.Errorf("load %s watermark: %w", entity, err)
	}

	var cs *content.ChangeSet
	err = e.retrier.Do(ctx, "query_changes", func(ctx context.Context) error {
		var err error
		cs, err = e.reader.Changes(ctx, entity, since)
		return classify(err)
	})
	if err != nil {
		return nil, fmt.Errorf("query %s changes: %w", entity, err)
	}

	if !cs.Empty() {
		fields := []zap.Field{zap.String("entity", entity.String())}
		for _, target := range cs.Targets() {
			fields = append(fields, zap.Int(target.String(), len(cs.IDs[target])))
		}
		e.logger.Info("Changes detected", fields...)
	}
	return &pending{cs: cs, since: since}, nil
}

// index ensures the target index exists and writes the documents of ids in batches.
func (e *Engine) index(ctx context.Context, target content.EntityType, ids []uuid.UUID) (int, error) {
	index := target.Index()

	err := e.retrier.Do(ctx, "ensure_index", func(ctx context.Context) error {
		return classify(e.writer.EnsureIndex(ctx, index))
	})
	if err != nil {
		return 0, fmt.Errorf("ensure index %s: %w", index, err)
	}

	total := 0
	for start := 0; start < len(ids); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(ids))
		chunk := ids[start:end]

		var docs []content.Document
		err := e.retrier.Do(ctx, "build_documents", func(ctx context.Context) error {
			var err error
			docs, err = e.builder.Build(ctx, target, chunk)
			return classify(err)
		})
		if err != nil {
			return total, fmt.Errorf("build %s documents: %w", target, err)
		}
		if len(docs) == 0 {
			continue
		}

		err = e.retrier.Do(ctx, "write_documents", func(ctx context.Context) error {
			return classify(e.writer.WriteBatch(ctx, index, docs))
		})
		if err != nil {
			return total, fmt.Errorf("write %s documents: %w", index, err)
		}
		total += len(docs)
	}

	e.logger.Debug("Index updated", zap.String("index", index), zap.Int("documents", total))
	return total, nil
}

// advance persists the watermark of every source whose targets are all written.
func (e *Engine) advance(ctx context.Context, sets []*pending, written map[content.EntityType]bool, summary *CycleSummary) error {
	for _, p := range sets {
		if p.advanced {
			continue
		}
		done := true
		for _, target := range p.cs.Targets() {
			if !written[target] {
				done = false
				break
			}
		}
		if !done {
			continue
		}
		p.advanced = true
		if p.cs.Next.Equal(p.since) {
			continue
		}

		entity, next := p.cs.Entity, p.cs.Next
		err := e.retrier.Do(ctx, "save_watermark", func(ctx context.Context) error {
			return classify(e.checkpoints.SetWatermark(ctx, entity, next))
		})
		if err != nil {
			return fmt.Errorf("save %s watermark: %w", entity, err)
		}

		if !slices.Contains(summary.Advanced, entity) {
			summary.Advanced = append(summary.Advanced, entity)
		}
		metrics.Watermark.WithLabelValues(entity.String()).Set(float64(next.UpdatedAt.Unix()))
		e.logger.Info("Watermark advanced",
			zap.String("entity", entity.String()),
			zap.Time("watermark", next.UpdatedAt),
			zap.String("last_id", next.LastID.String()))
	}
	return nil
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// classify marks errors that retrying cannot fix as permanent.
func classify(err error) error {
	if err == nil || retry.IsPermanent(err) {
		return err
	}
	switch {
	case errors.Is(err, state.ErrCorruptState),
		errors.Is(err, search.ErrUnknownScheme),
		errors.Is(err, content.ErrUnknownEntity):
		metrics.ErrorsTotal.WithLabelValues("etl", "permanent").Inc()
		return retry.Permanent(err)
	}
	return err
}
