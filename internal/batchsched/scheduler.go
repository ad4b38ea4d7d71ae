// Package batchsched implements the batch rule scheduler (C6, spec.md
// §4.5): for every enabled rule whose mode is batch, execute the rule's
// compiled query on its configured cadence and emit zero or one
// aggregated alert per (rule, tenant, throttle window). Grounded in
// packages/com.r3e.services.automation/scheduler.go's ServiceBase +
// ticker lifecycle, generalized from single-cadence job dispatch into
// per-rule cadence tracking.
package batchsched

import (
	"context"
	"sync"
	"time"

	"github.com/darkermemo/sim6-sub001/internal/apperrors"
	"github.com/darkermemo/sim6-sub001/internal/cache"
	"github.com/darkermemo/sim6-sub001/internal/eventstore"
	"github.com/darkermemo/sim6-sub001/internal/framework"
	core "github.com/darkermemo/sim6-sub001/internal/framework/core"
	"github.com/darkermemo/sim6-sub001/internal/logging"
	"github.com/darkermemo/sim6-sub001/internal/metrics"
	"github.com/darkermemo/sim6-sub001/internal/rule"
	"github.com/darkermemo/sim6-sub001/internal/ruledsl"
	"github.com/darkermemo/sim6-sub001/internal/store"
)

// RuleExecutor runs one rule's compiled query against the events store and
// returns the narrow projection the scheduler needs to partition and
// dedup results. Swappable seam for tests, the same role
// automation.JobDispatcher played for the teacher's trigger dispatch.
type RuleExecutor interface {
	Execute(ctx context.Context, r rule.Rule, limit int) ([]eventstore.Row, error)
}

// RuleExecutorFunc adapts a function to RuleExecutor.
type RuleExecutorFunc func(ctx context.Context, r rule.Rule, limit int) ([]eventstore.Row, error)

func (f RuleExecutorFunc) Execute(ctx context.Context, r rule.Rule, limit int) ([]eventstore.Row, error) {
	return f(ctx, r, limit)
}

// eventsExecutor is the default RuleExecutor, querying internal/eventstore
// directly with the rule's compiled SQL.
type eventsExecutor struct {
	events eventstore.EventStore
}

func (e eventsExecutor) Execute(ctx context.Context, r rule.Rule, limit int) ([]eventstore.Row, error) {
	return e.events.Query(ctx, r.CompiledSQL, nil, limit)
}

// Config bounds the scheduler's tick cadence and per-run limits.
type Config struct {
	TickInterval     time.Duration
	ResultLimit      int
	MaxExecutionTime time.Duration
	EventsTable      string
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.ResultLimit <= 0 {
		c.ResultLimit = 1000
	}
	if c.MaxExecutionTime <= 0 {
		c.MaxExecutionTime = 10 * time.Second
	}
	if c.EventsTable == "" {
		c.EventsTable = "events"
	}
	return c
}

// Scheduler polls RuleStore for enabled batch rules and executes each on
// its own cadence.
type Scheduler struct {
	framework.ServiceBase

	cfg      Config
	rules    store.RuleStore
	states   store.RuleStateStore
	alerts   store.AlertStore
	executor RuleExecutor
	cache    *cache.Cache
	metrics  *metrics.Metrics
	log      *logging.Logger
	tracer   core.Tracer

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New builds a batch rule scheduler. executor may be nil, in which case
// queries run directly against events.
func New(cfg Config, rules store.RuleStore, states store.RuleStateStore, alerts store.AlertStore, events eventstore.EventStore, executor RuleExecutor, c *cache.Cache, m *metrics.Metrics, log *logging.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	if executor == nil {
		executor = eventsExecutor{events: events}
	}
	if log == nil {
		log = logging.Default()
	}
	s := &Scheduler{
		cfg:      cfg,
		tracer:   core.NoopTracer,
		rules:    rules,
		states:   states,
		alerts:   alerts,
		executor: executor,
		cache:    c,
		metrics:  m,
		log:      log,
	}
	s.SetName("batch-rule-scheduler")
	return s
}

// WithTracer configures a tracer wrapping each rule run's execute+alert
// span. Pass nil to revert to the no-op tracer.
func (s *Scheduler) WithTracer(tracer core.Tracer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tracer == nil {
		s.tracer = core.NoopTracer
		return
	}
	s.tracer = tracer
}

// Start begins the polling loop, with an immediate first tick so newly
// enabled rules don't wait for the first interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	go s.tick(runCtx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()

	s.MarkReady(true)
	return nil
}

// Stop halts the polling loop.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
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

func (s *Scheduler) tick(ctx context.Context) {
	listCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	rules, err := s.rules.ListEnabledRules(listCtx, rule.ModeBatch)
	cancel()
	if err != nil {
		s.log.WithError(err).Warn("batch scheduler rule list failed")
		return
	}

	now := time.Now()
	var wg sync.WaitGroup
	for _, r := range rules {
		if !s.due(ctx, r, now) {
			continue
		}
		wg.Add(1)
		go func(r rule.Rule) {
			defer wg.Done()
			s.runRule(ctx, r)
		}(r)
	}
	wg.Wait()
}

// due reports whether rule r's cadence (schedule_sec, or the effective
// interval derived from schedule_cron) has elapsed since its last run.
func (s *Scheduler) due(ctx context.Context, r rule.Rule, now time.Time) bool {
	interval := time.Duration(r.ScheduleSec) * time.Second
	if r.ScheduleCron != "" {
		if next, ok := NextCronInterval(r.ScheduleCron, now); ok {
			interval = next
		}
	}
	if interval <= 0 {
		interval = s.cfg.TickInterval
	}

	st, err := s.states.GetState(ctx, r.RuleID, r.TenantScope)
	if err != nil {
		return true
	}
	if st.LastRunTS.IsZero() {
		return true
	}
	return now.Sub(st.LastRunTS) >= interval
}

func (s *Scheduler) runRule(ctx context.Context, r rule.Rule) {
	spanCtx, finishSpan := s.tracer.StartSpan(ctx, "batchsched.run_rule", map[string]string{
		"rule_id": r.RuleID, "tenant_scope": r.TenantScope,
	})
	var runErr error
	defer func() { finishSpan(runErr) }()
	ctx = spanCtx

	if err := s.ensureCompiled(&r); err != nil {
		runErr = err
		s.recordError(ctx, r, err)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.MaxExecutionTime)
	rows, err := s.executor.Execute(runCtx, r, s.cfg.ResultLimit)
	cancel()
	if err != nil {
		runErr = err
		s.recordError(ctx, r, err)
		return
	}

	st := rule.State{RuleID: r.RuleID, TenantID: r.TenantScope, LastRunTS: time.Now(), LastSQL: r.CompiledSQL}

	if len(rows) == 0 {
		st.LastSuccess = time.Now()
		s.saveState(ctx, st)
		s.recordRun(r, "no_results")
		return
	}

	byTenant := partitionByTenant(rows)
	for tenantID, tenantRows := range byTenant {
		s.emitAggregatedAlert(ctx, r, tenantID, tenantRows, &st)
	}

	st.LastSuccess = time.Now()
	s.saveState(ctx, st)
	s.recordRun(r, "ok")
}

func partitionByTenant(rows []eventstore.Row) map[string][]eventstore.Row {
	out := map[string][]eventstore.Row{}
	for _, row := range rows {
		out[row.TenantID] = append(out[row.TenantID], row)
	}
	return out
}

// emitAggregatedAlert implements spec.md §4.5 step 4: dedup hash, throttle
// window, deterministic alert id, idempotent insert.
func (s *Scheduler) emitAggregatedAlert(ctx context.Context, r rule.Rule, tenantID string, rows []eventstore.Row, st *rule.State) {
	dedupHash := rule.BatchDedupHash(r.RuleID, tenantID)
	window := rule.ThrottleWindow(time.Now(), r.ThrottleSeconds)
	alertID := rule.BatchAlertID(dedupHash, window)

	existingState, _ := s.states.GetState(ctx, r.RuleID, tenantID)
	if r.ThrottleSeconds > 0 && !existingState.LastAlertTS.IsZero() &&
		time.Since(existingState.LastAlertTS) < time.Duration(r.ThrottleSeconds)*time.Second {
		s.recordRun(r, "suppressed")
		return
	}

	refs := make([]rule.EventRef, len(rows))
	for i, row := range rows {
		refs[i] = rule.EventRef{
			EventID:        row.EventID,
			EventTimestamp: time.UnixMilli(row.EventTimestamp),
			SourceType:     row.SourceType,
			TenantID:       row.TenantID,
		}
	}

	now := time.Now()
	alert := rule.Alert{
		AlertID:        alertID,
		TenantID:       tenantID,
		RuleID:         r.RuleID,
		Title:          r.Title,
		Description:    "Batch rule matched",
		EventRefs:      refs,
		Severity:       r.Severity,
		Status:         rule.StatusOpen,
		AlertTimestamp: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	inserted, err := s.alerts.InsertAlert(ctx, alert)
	if err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{"rule_id": r.RuleID, "tenant_id": tenantID}).Warn("batch alert insert failed")
		return
	}
	if inserted {
		s.recordAlert(r, tenantID)
	}

	st.DedupHash = dedupHash
	st.LastAlertTS = now
	_ = s.states.UpsertState(ctx, rule.State{
		RuleID: r.RuleID, TenantID: tenantID,
		LastRunTS: st.LastRunTS, LastSuccess: st.LastRunTS,
		LastSQL: r.CompiledSQL, DedupHash: dedupHash, LastAlertTS: now,
	})
}

// ensureCompiled recompiles r's DSL when compiled_sql is stale (absent),
// per spec.md §4.5 step 1.
func (s *Scheduler) ensureCompiled(r *rule.Rule) error {
	if r.CompiledSQL != "" {
		return nil
	}
	if s.cache != nil {
		if cached, ok := s.cache.Get(cacheKey(r.RuleID)); ok {
			if sql, ok := cached.(string); ok {
				r.CompiledSQL = sql
				return nil
			}
		}
	}

	var dsl ruledsl.DSL
	if err := decodeDSL(r.DSL, &dsl); err != nil {
		return apperrors.Internal("decode rule dsl", err)
	}
	res, err := ruledsl.Recompile(r, dsl, s.cfg.EventsTable)
	if err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Set(cacheKey(r.RuleID), res.SQL, 5*time.Minute)
	}
	return nil
}

func cacheKey(ruleID string) string { return "batchsched:compiled:" + ruleID }

func (s *Scheduler) saveState(ctx context.Context, st rule.State) {
	if err := s.states.UpsertState(ctx, st); err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{"rule_id": st.RuleID}).Warn("rule state upsert failed")
	}
}

func (s *Scheduler) recordError(ctx context.Context, r rule.Rule, err error) {
	s.log.WithError(err).WithFields(map[string]interface{}{"rule_id": r.RuleID}).Warn("batch rule run failed")
	_ = s.states.UpsertState(ctx, rule.State{
		RuleID: r.RuleID, TenantID: r.TenantScope,
		LastRunTS: time.Now(), LastError: err.Error(),
	})
	s.recordRun(r, "error")
}

func (s *Scheduler) recordRun(r rule.Rule, status string) {
	if s.metrics != nil {
		s.metrics.RulesRunTotal.WithLabelValues(r.RuleID, r.TenantScope, status, status).Inc()
	}
}

func (s *Scheduler) recordAlert(r rule.Rule, tenantID string) {
	if s.metrics != nil {
		s.metrics.AlertsEmittedTotal.WithLabelValues(r.RuleID, tenantID).Inc()
	}
}
