// Package streamrunner implements the streaming rule runner (C7, spec.md
// §4.6): a single cooperative task per process that round-robins over
// tenants, consumer-group reads each tenant's event stream, evaluates
// stream-mode rules against each entry, and emits deduplicated,
// throttled, sliding-window threshold alerts. Grounded in the teacher's
// ServiceBase lifecycle idiom plus go-redis/redis/v9's consumer-group
// primitives for at-least-once delivery.
package streamrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v9"

	"github.com/darkermemo/sim6-sub001/internal/apperrors"
	"github.com/darkermemo/sim6-sub001/internal/framework"
	"github.com/darkermemo/sim6-sub001/internal/logging"
	"github.com/darkermemo/sim6-sub001/internal/metrics"
	"github.com/darkermemo/sim6-sub001/internal/rule"
	"github.com/darkermemo/sim6-sub001/internal/ruledsl"
	"github.com/darkermemo/sim6-sub001/internal/ruleeval"
	"github.com/darkermemo/sim6-sub001/internal/store"
)

// Config bounds consumer-group read/reclaim cadence (spec.md §4.6).
type Config struct {
	KeyPrefix       string
	GroupName       string
	ConsumerName    string
	BlockTimeout    time.Duration // <= 1s
	ReadCount       int64         // <= 100
	ReclaimInterval time.Duration // <= 60s
	MinIdleTime     time.Duration
	DedupTTL        time.Duration // 60s per spec.md §6
	LagPollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "siem:events"
	}
	if c.GroupName == "" {
		c.GroupName = "streamrunner"
	}
	if c.ConsumerName == "" {
		c.ConsumerName = "consumer-1"
	}
	if c.BlockTimeout <= 0 || c.BlockTimeout > time.Second {
		c.BlockTimeout = time.Second
	}
	if c.ReadCount <= 0 || c.ReadCount > 100 {
		c.ReadCount = 100
	}
	if c.ReclaimInterval <= 0 || c.ReclaimInterval > 60*time.Second {
		c.ReclaimInterval = 60 * time.Second
	}
	if c.MinIdleTime <= 0 {
		c.MinIdleTime = 30 * time.Second
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 60 * time.Second
	}
	if c.LagPollInterval <= 0 {
		c.LagPollInterval = 15 * time.Second
	}
	return c
}

// TenantLister supplies the set of tenants the runner round-robins over.
type TenantLister interface {
	ListActiveTenants(ctx context.Context) ([]string, error)
}

// StaticTenants is a TenantLister over a fixed tenant list.
type StaticTenants []string

func (s StaticTenants) ListActiveTenants(context.Context) ([]string, error) { return []string(s), nil }

// groupState is the unshared per-(rule,tenant,group_key) sliding-window
// and throttle state, owned exclusively by the single runner goroutine
// (spec.md §5 concurrency model: per-task, never shared across tenants).
type groupState struct {
	window      []int64
	lastAlertAt time.Time
}

// Runner is the streaming rule evaluator.
type Runner struct {
	framework.ServiceBase

	cfg     Config
	client  redis.UniversalClient
	rules   store.RuleStore
	alerts  store.AlertStore
	tenants TenantLister
	metrics *metrics.Metrics
	log     *logging.Logger

	mu     sync.Mutex
	groups map[string]*groupState // key: rule_id|tenant_id|group_key

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a streaming rule runner.
func New(cfg Config, client redis.UniversalClient, rules store.RuleStore, alerts store.AlertStore, tenants TenantLister, m *metrics.Metrics, log *logging.Logger) *Runner {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logging.Default()
	}
	r := &Runner{
		cfg:     cfg,
		client:  client,
		rules:   rules,
		alerts:  alerts,
		tenants: tenants,
		metrics: m,
		log:     log,
		groups:  map[string]*groupState{},
	}
	r.SetName("streaming-rule-runner")
	return r
}

func (r *Runner) streamKey(tenantID string) string {
	return fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, tenantID)
}

// Start launches the round-robin consumer loop plus the reclaim and lag
// observability tickers.
func (r *Runner) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(runCtx)
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.reclaimLoop(runCtx)
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.lagLoop(runCtx)
	}()

	r.MarkReady(true)
	return nil
}

// Stop halts all background loops.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.MarkReady(false)
	return nil
}

// loop is the single cooperative task round-robining over tenants.
func (r *Runner) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		tenants, err := r.tenants.ListActiveTenants(ctx)
		if err != nil || len(tenants) == 0 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, tenantID := range tenants {
			select {
			case <-ctx.Done():
				return
			default:
			}
			r.processTenant(ctx, tenantID)
		}
	}
}

func (r *Runner) processTenant(ctx context.Context, tenantID string) {
	stream := r.streamKey(tenantID)
	if err := r.ensureGroup(ctx, stream); err != nil {
		r.log.WithError(err).WithFields(map[string]interface{}{"tenant_id": tenantID}).Warn("stream group creation failed")
		return
	}

	res, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.cfg.GroupName,
		Consumer: r.cfg.ConsumerName,
		Streams:  []string{stream, ">"},
		Count:    r.cfg.ReadCount,
		Block:    r.cfg.BlockTimeout,
	}).Result()
	if err != nil {
		if err != redis.Nil {
			r.log.WithError(err).WithFields(map[string]interface{}{"tenant_id": tenantID}).Warn("stream read failed")
		}
		return
	}

	rules, err := r.streamRulesFor(ctx, tenantID)
	if err != nil {
		r.log.WithError(err).Warn("stream rule list failed")
		return
	}

	for _, s := range res {
		for _, entry := range s.Messages {
			r.processEntry(ctx, tenantID, stream, entry, rules)
		}
	}
}

func (r *Runner) ensureGroup(ctx context.Context, stream string) error {
	err := r.client.XGroupCreateMkStream(ctx, stream, r.cfg.GroupName, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return err
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// streamRulesFor returns enabled stream-mode rules scoped to tenantID or
// to all tenants.
func (r *Runner) streamRulesFor(ctx context.Context, tenantID string) ([]rule.Rule, error) {
	all, err := r.rules.ListEnabledRules(ctx, rule.ModeStream)
	if err != nil {
		return nil, err
	}
	out := make([]rule.Rule, 0, len(all))
	for _, ru := range all {
		if ru.TenantScope == rule.TenantScopeAll || ru.TenantScope == tenantID {
			out = append(out, ru)
		}
	}
	return out, nil
}

func (r *Runner) processEntry(ctx context.Context, tenantID, stream string, entry redis.XMessage, rules []rule.Rule) {
	env, err := entryEnvelope(entry)
	if err != nil {
		r.log.WithError(err).Warn("stream entry envelope build failed")
		r.ack(ctx, tenantID, stream, entry.ID)
		return
	}

	blockAck := false
	for _, ru := range rules {
		_, insertFailed, err := r.evaluateRule(ctx, tenantID, entry, env, ru)
		if err != nil {
			r.recordEvalError(ru, tenantID)
			continue
		}
		blockAck = blockAck || insertFailed
	}

	// An alert insert failure leaves the entry unacknowledged so it is
	// redelivered (spec.md §4.6 step 7); every other outcome acks once
	// all rules have been evaluated.
	if !blockAck {
		r.ack(ctx, tenantID, stream, entry.ID)
	}
}

func entryEnvelope(entry redis.XMessage) (ruleeval.Envelope, error) {
	raw, ok := entry.Values["event"]
	if !ok {
		return nil, apperrors.Internal("stream entry missing event field", nil)
	}
	s, ok := raw.(string)
	if !ok {
		return nil, apperrors.Internal("stream entry event field not a string", nil)
	}
	return ruleeval.Envelope(s), nil
}

func (r *Runner) ack(ctx context.Context, tenantID, stream, id string) {
	if err := r.client.XAck(ctx, stream, r.cfg.GroupName, id).Err(); err != nil {
		r.log.WithError(err).Warn("stream ack failed")
		return
	}
	if r.metrics != nil {
		r.metrics.StreamAcksTotal.WithLabelValues(tenantID).Inc()
	}
}

// evaluateRule implements spec.md §4.6's per-entry evaluation and
// on-match sliding-window/dedup/throttle steps for one rule. The second
// return reports whether an alert-insert failure occurred, so the caller
// can withhold the stream ack and let the entry be redelivered.
func (r *Runner) evaluateRule(ctx context.Context, tenantID string, entry redis.XMessage, env ruleeval.Envelope, ru rule.Rule) (matched bool, insertFailed bool, err error) {
	var dsl ruledsl.DSL
	if err := json.Unmarshal(ru.DSL, &dsl); err != nil {
		return false, false, err
	}
	if dsl.Search.Where == nil {
		return false, false, nil
	}

	matched, err = ruleeval.Eval(dsl.Search.Where, env)
	if err != nil {
		return false, false, err
	}
	if !matched {
		return false, false, nil
	}
	if r.metrics != nil {
		r.metrics.StreamMatchesTotal.WithLabelValues(ru.RuleID, tenantID).Inc()
	}

	dedupFields := ru.DedupKey
	if len(dedupFields) == 0 {
		dedupFields = []string{"tenant_id", "event_id"}
	}
	dedupValues := make([]string, len(dedupFields))
	for i, f := range dedupFields {
		dedupValues[i] = fieldValue(env, tenantID, entry.ID, f)
	}
	dedupKey := rule.DedupKey(ru.RuleID, dedupValues)

	firstSeen, err := r.client.SetNX(ctx, dedupKey, entry.ID, r.cfg.DedupTTL).Result()
	if err != nil {
		return true, false, err
	}
	if !firstSeen {
		return true, false, nil
	}

	groupKey := ruleeval.GroupKey(env, ru.GroupBy)
	stateKey := ru.RuleID + "|" + tenantID + "|" + groupKey

	r.mu.Lock()
	gs, ok := r.groups[stateKey]
	if !ok {
		gs = &groupState{}
		r.groups[stateKey] = gs
	}
	now := time.Now()
	nowMs := now.UnixMilli()
	gs.window = append(gs.window, nowMs)
	windowMs := int64(ru.StreamWindowSec) * 1000
	if windowMs <= 0 {
		windowMs = 60_000
	}
	cutoff := nowMs - windowMs
	trimmed := gs.window[:0]
	for _, ts := range gs.window {
		if ts >= cutoff {
			trimmed = append(trimmed, ts)
		}
	}
	gs.window = trimmed
	count := len(gs.window)
	threshold := ru.Threshold
	if threshold <= 0 {
		threshold = 1
	}

	if count < threshold {
		r.mu.Unlock()
		return true, false, nil
	}

	if ru.ThrottleSeconds > 0 && !gs.lastAlertAt.IsZero() &&
		now.Sub(gs.lastAlertAt) < time.Duration(ru.ThrottleSeconds)*time.Second {
		r.mu.Unlock()
		return true, false, nil
	}
	gs.lastAlertAt = now
	r.mu.Unlock()

	alertID := rule.StreamAlertID(ru.RuleID, tenantID, groupKey, entry.ID)
	alert := rule.Alert{
		AlertID:        alertID,
		TenantID:       tenantID,
		RuleID:         ru.RuleID,
		Title:          ru.Title,
		Description:    fmt.Sprintf("Streaming threshold met (count>=%d) group=%s", threshold, groupKey),
		Severity:       ru.Severity,
		Status:         rule.StatusOpen,
		AlertTimestamp: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	inserted, err := r.alerts.InsertAlert(ctx, alert)
	if err != nil {
		return true, true, err
	}
	if inserted && r.metrics != nil {
		r.metrics.AlertsEmittedTotal.WithLabelValues(ru.RuleID, tenantID).Inc()
	}
	return true, false, nil
}

func fieldValue(env ruleeval.Envelope, tenantID, entryID, field string) string {
	switch field {
	case "tenant_id":
		return tenantID
	case "event_id", "stream_entry_id":
		return entryID
	default:
		return env.Get(field).String()
	}
}

func (r *Runner) recordEvalError(ru rule.Rule, tenantID string) {
	if r.metrics != nil {
		r.metrics.StreamEvalErrorsTotal.WithLabelValues(ru.RuleID, tenantID).Inc()
	}
}

// reclaimLoop reclaims entries idle longer than MinIdleTime every
// ReclaimInterval so a crashed consumer cannot indefinitely hold pending
// entries (spec.md §4.6 "stuck-entry recovery").
func (r *Runner) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reclaimAll(ctx)
		}
	}
}

func (r *Runner) reclaimAll(ctx context.Context) {
	tenants, err := r.tenants.ListActiveTenants(ctx)
	if err != nil {
		return
	}
	for _, tenantID := range tenants {
		stream := r.streamKey(tenantID)
		cursor := "0-0"
		for {
			msgs, next, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   stream,
				Group:    r.cfg.GroupName,
				Consumer: r.cfg.ConsumerName,
				MinIdle:  r.cfg.MinIdleTime,
				Start:    cursor,
				Count:    r.cfg.ReadCount,
			}).Result()
			if err != nil || len(msgs) == 0 {
				break
			}
			cursor = next
			rules, err := r.streamRulesFor(ctx, tenantID)
			if err != nil {
				break
			}
			for _, entry := range msgs {
				r.processEntry(ctx, tenantID, stream, entry, rules)
			}
			if cursor == "0-0" {
				break
			}
		}
	}
}

// lagLoop publishes stream_lag_ms{tenant} derived from each stream's
// last-generated-id timestamp vs wall clock.
func (r *Runner) lagLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.LagPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.publishLag(ctx)
		}
	}
}

func (r *Runner) publishLag(ctx context.Context) {
	tenants, err := r.tenants.ListActiveTenants(ctx)
	if err != nil {
		return
	}
	for _, tenantID := range tenants {
		info, err := r.client.XInfoStream(ctx, r.streamKey(tenantID)).Result()
		if err != nil {
			continue
		}
		lastMs := lastGeneratedIDMillis(info.LastGeneratedID)
		if lastMs == 0 {
			continue
		}
		lag := float64(time.Now().UnixMilli() - lastMs)
		if r.metrics != nil {
			r.metrics.StreamLagMs.WithLabelValues(tenantID).Set(lag)
		}
	}
}

// lastGeneratedIDMillis extracts the millisecond timestamp prefix of a
// Redis Stream entry id ("<ms>-<seq>").
func lastGeneratedIDMillis(id string) int64 {
	var ms int64
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c == '-' {
			break
		}
		if c < '0' || c > '9' {
			return 0
		}
		ms = ms*10 + int64(c-'0')
	}
	return ms
}
