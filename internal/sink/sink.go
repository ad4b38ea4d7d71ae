// Package sink implements the event sink (C4, spec.md §4.3): a bounded
// worker pool that batches normalized events by size/bytes/latency,
// persists them to the columnar store with bounded exponential-backoff
// retry, dead-letters exhausted batches, and appends successful events to a
// per-tenant Redis Stream for the streaming rule runner. Grounded in
// packages/com.r3e.services.automation/scheduler.go's ServiceBase +
// ticker-driven worker lifecycle, generalized from single-shot job polling
// to continuous batch accumulation.
package sink

import (
	"context"
	"sync"
	"time"

	"github.com/darkermemo/sim6-sub001/internal/apperrors"
	"github.com/darkermemo/sim6-sub001/internal/cim"
	"github.com/darkermemo/sim6-sub001/internal/eventstore"
	"github.com/darkermemo/sim6-sub001/internal/framework"
	"github.com/darkermemo/sim6-sub001/internal/framework/lifecycle"
	"github.com/darkermemo/sim6-sub001/internal/logging"
	"github.com/darkermemo/sim6-sub001/internal/metrics"
	"github.com/darkermemo/sim6-sub001/internal/normalize"
	"github.com/darkermemo/sim6-sub001/internal/parser"
	"github.com/darkermemo/sim6-sub001/internal/ratelimit"
)

// BackpressurePolicy controls Submit's behavior once the queue is saturated.
type BackpressurePolicy string

const (
	PolicyBlock BackpressurePolicy = "block"
	PolicyShed  BackpressurePolicy = "shed"
)

// Config bounds batching, retry and backpressure behavior (spec.md §4.3).
type Config struct {
	MaxBatchSize    int
	MaxBatchBytes   int
	MaxLatency      time.Duration
	WorkerCount     int
	QueueCapacity   int
	MaxRetries      int
	BaseBackoff     time.Duration
	Backpressure    BackpressurePolicy
	Limits          normalize.Limits
	DefaultTenantID string
}

func (c Config) withDefaults() Config {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 500
	}
	if c.MaxBatchBytes <= 0 {
		c.MaxBatchBytes = 4 << 20
	}
	if c.MaxLatency <= 0 {
		c.MaxLatency = time.Second
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 8
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = c.MaxBatchSize * c.WorkerCount * 4
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 100 * time.Millisecond
	}
	if c.Backpressure == "" {
		c.Backpressure = PolicyBlock
	}
	return c
}

type queuedEvent struct {
	tenantID   string
	sourceType string
	event      cim.Event
	size       int
}

// Sink ingests raw records, normalizes them, and durably persists them in
// batches.
type Sink struct {
	framework.ServiceBase

	cfg      Config
	store    eventstore.EventStore
	producer StreamProducer
	dlq      DeadLetterQueue
	limiters *ratelimit.TenantLimiters
	metrics  *metrics.Metrics
	log      *logging.Logger

	queue  chan queuedEvent
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// shutdown tracks in-flight Submit calls so Stop can wait for them to
	// finish enqueuing before canceling the workers reading from queue.
	shutdown *lifecycle.GracefulShutdown
}

// New builds a Sink. producer and metrics may be nil.
func New(cfg Config, store eventstore.EventStore, producer StreamProducer, dlq DeadLetterQueue, limiters *ratelimit.TenantLimiters, m *metrics.Metrics, log *logging.Logger) *Sink {
	cfg = cfg.withDefaults()
	if dlq == nil {
		dlq = NewRingDLQ(1000)
	}
	if log == nil {
		log = logging.Default()
	}
	s := &Sink{
		cfg:      cfg,
		store:    store,
		producer: producer,
		dlq:      dlq,
		limiters: limiters,
		metrics:  m,
		log:      log,
		queue:    make(chan queuedEvent, cfg.QueueCapacity),
		shutdown: lifecycle.NewGracefulShutdown(),
	}
	s.SetName("event-sink")
	return s
}

// Start launches the worker pool.
func (s *Sink) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(runCtx)
	}
	s.MarkReady(true)
	return nil
}

// Stop rejects new submissions, waits for in-flight ones to finish
// enqueuing, then drains in-flight batches and halts all workers.
func (s *Sink) Stop(ctx context.Context) error {
	s.shutdown.Shutdown()
	if err := s.shutdown.Wait(ctx); err != nil {
		return err
	}
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.MarkReady(false)
	return nil
}

// Submit parses and normalizes one raw record and enqueues it for batching.
// Under the shed backpressure policy, Submit returns an error immediately
// when the queue is full instead of blocking the caller.
func (s *Sink) Submit(ctx context.Context, raw []byte, tenantDefault string) error {
	guard := lifecycle.NewOperationGuard(s.shutdown)
	if guard == nil {
		return apperrors.New(apperrors.ErrCodeInternal, "sink is shutting down", 503)
	}
	defer guard.Close()

	if tenantDefault == "" {
		tenantDefault = s.cfg.DefaultTenantID
	}

	parsed := parser.Parse(raw)
	result, err := normalize.Normalize(normalize.Request{
		Raw:           raw,
		Parsed:        parsed,
		TenantDefault: tenantDefault,
		Limits:        s.cfg.Limits,
	})
	if err != nil {
		s.observeFailed(tenantDefault, string(parsed.SourceType), string(apperrors.Code(err)))
		return err
	}
	sourceType := string(parsed.SourceType)

	if s.limiters != nil {
		if s.cfg.Backpressure == PolicyShed {
			if !s.limiters.For(result.Event.TenantID).Allow() {
				s.observeDropped(result.Event.TenantID, "rate_limited")
				return apperrors.New(apperrors.ErrCodeBatchTooLarge, "ingestion rate limit exceeded, record shed", 429)
			}
		} else if err := s.limiters.WaitN(ctx, result.Event.TenantID, 1); err != nil {
			return err
		}
	}

	q := queuedEvent{tenantID: result.Event.TenantID, sourceType: sourceType, event: result.Event, size: len(raw)}
	if s.cfg.Backpressure == PolicyShed {
		select {
		case s.queue <- q:
			s.observeAccepted(result.Event.TenantID, sourceType)
			return nil
		default:
			s.observeDropped(result.Event.TenantID, "queue_full")
			return apperrors.New(apperrors.ErrCodeBatchTooLarge, "sink queue full, record shed", 429)
		}
	}
	select {
	case s.queue <- q:
		s.observeAccepted(result.Event.TenantID, sourceType)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) worker(ctx context.Context) {
	defer s.wg.Done()

	var batch []queuedEvent
	var batchBytes int
	timer := time.NewTimer(s.cfg.MaxLatency)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.flushBatch(ctx, batch)
		batch = nil
		batchBytes = 0
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.cfg.MaxLatency)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case q := <-s.queue:
			batch = append(batch, q)
			batchBytes += q.size
			if len(batch) >= s.cfg.MaxBatchSize || batchBytes >= s.cfg.MaxBatchBytes {
				flush()
			}
		case <-timer.C:
			flush()
		}
	}
}

func (s *Sink) flushBatch(ctx context.Context, batch []queuedEvent) {
	events := make([]cim.Event, len(batch))
	for i, q := range batch {
		events[i] = q.event
	}

	err := s.insertWithRetry(ctx, events)
	if err != nil {
		byTenant := map[string][]cim.Event{}
		for i, e := range events {
			byTenant[batch[i].tenantID] = append(byTenant[batch[i].tenantID], e)
		}
		for tenantID, tenantEvents := range byTenant {
			_ = s.dlq.Write(ctx, tenantID, tenantEvents, err)
			s.observeDropped(tenantID, "retries_exhausted")
		}
		s.log.WithError(err).Warn("sink batch dead-lettered after retries exhausted")
		return
	}

	if s.producer != nil {
		for i, e := range events {
			if err := s.producer.Append(ctx, batch[i].tenantID, e); err != nil {
				s.log.WithError(err).WithFields(map[string]interface{}{"tenant_id": batch[i].tenantID}).Warn("stream append failed; event persisted but not streamed")
			}
		}
	}

	for _, q := range batch {
		s.observeProcessed(q.tenantID, q.sourceType)
	}
}

// insertWithRetry persists events with exponential backoff bounded by
// cfg.MaxRetries, grounded in the teacher's time.Sleep-based retry idiom
// used around automation trigger dispatch.
func (s *Sink) insertWithRetry(ctx context.Context, events []cim.Event) error {
	backoff := s.cfg.BaseBackoff
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if err := s.store.InsertBatch(ctx, events); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt == s.cfg.MaxRetries {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return apperrors.BackendRetriesExhausted("sink.InsertBatch", s.cfg.MaxRetries+1, lastErr)
}

func (s *Sink) observeAccepted(tenantID, sourceType string) {
	if s.metrics != nil {
		s.metrics.EventsIngestedTotal.WithLabelValues(tenantID, sourceType).Inc()
		s.metrics.SetQueueDepth(tenantID, len(s.queue))
	}
}

func (s *Sink) observeProcessed(tenantID, sourceType string) {
	if s.metrics != nil {
		s.metrics.EventsProcessedTotal.WithLabelValues(tenantID, sourceType).Inc()
	}
}

func (s *Sink) observeFailed(tenantID, sourceType, reason string) {
	if s.metrics != nil {
		s.metrics.EventsFailedTotal.WithLabelValues(tenantID, sourceType, reason).Inc()
	}
}

func (s *Sink) observeDropped(tenantID, reason string) {
	if s.metrics != nil {
		s.metrics.EventsDroppedTotal.WithLabelValues(tenantID, reason).Inc()
	}
}
