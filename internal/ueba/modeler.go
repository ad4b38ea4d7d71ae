// Package ueba computes per-tenant behavioral baselines from the events
// store on a fixed interval (spec.md §4.7), grounded in
// original_source/siem_ueba_modeler/src/main.rs: the same three metrics
// (login frequency, data egress, hourly activity variance), the same
// estimator shortcuts for the first two, and the same confidence formula,
// translated from the original's ClickHouse-HTTP client onto the Go
// eventstore.EventStore / store.BaselineStore interfaces.
package ueba

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/darkermemo/sim6-sub001/internal/eventstore"
	"github.com/darkermemo/sim6-sub001/internal/framework"
	"github.com/darkermemo/sim6-sub001/internal/logging"
	"github.com/darkermemo/sim6-sub001/internal/rule"
	"github.com/darkermemo/sim6-sub001/internal/store"
)

// TenantLister supplies the set of tenants the modeler cycles over.
type TenantLister interface {
	ListActiveTenants(ctx context.Context) ([]string, error)
}

// StaticTenants is a TenantLister over a fixed tenant list.
type StaticTenants []string

func (s StaticTenants) ListActiveTenants(context.Context) ([]string, error) { return []string(s), nil }

// Config controls the modeling cadence and lookback window.
type Config struct {
	IntervalHours         int
	CalculationPeriodDays int
}

func (c Config) withDefaults() Config {
	if c.IntervalHours <= 0 {
		c.IntervalHours = 24
	}
	if c.CalculationPeriodDays <= 0 {
		c.CalculationPeriodDays = 30
	}
	return c
}

// Modeler is the periodic UEBA baseline worker (C8): every interval, for
// every tenant, it recomputes the statistics of spec.md §4.7 and
// overwrites that tenant's baselines. A tenant whose query fails is logged
// and skipped; it never stalls the rest of the cycle.
type Modeler struct {
	framework.ServiceBase

	cfg       Config
	events    eventstore.EventStore
	baselines store.BaselineStore
	tenants   TenantLister
	log       *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Modeler. log may be nil, in which case logging.Default() is used.
func New(cfg Config, events eventstore.EventStore, baselines store.BaselineStore, tenants TenantLister, log *logging.Logger) *Modeler {
	if log == nil {
		log = logging.Default()
	}
	m := &Modeler{cfg: cfg.withDefaults(), events: events, baselines: baselines, tenants: tenants, log: log}
	m.SetName("ueba-modeler")
	return m
}

// Start runs one modeling cycle immediately, then every IntervalHours.
func (m *Modeler) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.loop(runCtx)
	m.MarkReady(true)
	return nil
}

// Stop cancels the modeling loop and waits for the in-flight cycle to finish.
func (m *Modeler) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.MarkReady(false)
	return nil
}

func (m *Modeler) loop(ctx context.Context) {
	defer m.wg.Done()

	m.runCycle(ctx)

	ticker := time.NewTicker(time.Duration(m.cfg.IntervalHours) * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

func (m *Modeler) runCycle(ctx context.Context) {
	m.log.Info("ueba: starting modeling cycle")

	tenants, err := m.tenants.ListActiveTenants(ctx)
	if err != nil {
		m.log.WithError(err).Error("ueba: failed to list tenants")
		return
	}

	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return
		}
		if err := m.processTenant(ctx, tenantID); err != nil {
			m.log.WithError(err).WithFields(map[string]interface{}{"tenant_id": tenantID}).
				Error("ueba: tenant modeling cycle failed")
		}
	}

	m.log.Info("ueba: modeling cycle completed")
}

// processTenant computes all three baseline families for one tenant and
// overwrites them in the baseline store. Per-metric query failures are
// logged and do not prevent the other metrics from being stored.
func (m *Modeler) processTenant(ctx context.Context, tenantID string) error {
	var baselines []rule.Baseline

	loginBaselines, err := m.loginFrequencyBaselines(ctx, tenantID)
	if err != nil {
		m.log.WithError(err).WithFields(map[string]interface{}{"tenant_id": tenantID}).
			Warn("ueba: login frequency baselines failed")
	} else {
		baselines = append(baselines, loginBaselines...)
	}

	egressBaselines, err := m.dataEgressBaselines(ctx, tenantID)
	if err != nil {
		m.log.WithError(err).WithFields(map[string]interface{}{"tenant_id": tenantID}).
			Warn("ueba: data egress baselines failed")
	} else {
		baselines = append(baselines, egressBaselines...)
	}

	varianceBaselines, err := m.hourlyVarianceBaselines(ctx, tenantID)
	if err != nil {
		m.log.WithError(err).WithFields(map[string]interface{}{"tenant_id": tenantID}).
			Warn("ueba: hourly variance baselines failed")
	} else {
		baselines = append(baselines, varianceBaselines...)
	}

	if len(baselines) == 0 {
		m.log.WithFields(map[string]interface{}{"tenant_id": tenantID}).
			Warn("ueba: no baselines computed, insufficient data")
		return nil
	}

	for _, b := range baselines {
		if err := m.baselines.UpsertBaseline(ctx, b); err != nil {
			return fmt.Errorf("upsert baseline %s/%s/%s: %w", tenantID, b.EntityID, b.Metric, err)
		}
	}
	return nil
}

const loginFrequencyQuery = `
WITH user_hourly_logins AS (
	SELECT user_name AS entity_id,
	       date_trunc('hour', event_timestamp) AS hour_bucket,
	       COUNT(*) AS login_count
	FROM events
	WHERE tenant_id = $1
	  AND category = 'Authentication'
	  AND result = 'Success'
	  AND user_name IS NOT NULL
	  AND user_name <> ''
	  AND event_timestamp > now() - ($2 * interval '1 second')
	GROUP BY user_name, hour_bucket
)
SELECT entity_id,
       SUM(login_count) AS total_logins,
       COUNT(DISTINCT hour_bucket) AS hours_observed,
       AVG(login_count) AS avg_logins_per_hour
FROM user_hourly_logins
GROUP BY entity_id
HAVING COUNT(DISTINCT hour_bucket) >= 24
ORDER BY entity_id
`

// loginFrequencyBaselines computes mean logins/hour per user, requiring at
// least 24 observed hours, and estimates stddev as 30% of the mean (floor
// 0.1) rather than an empirical stddev, per the retained estimator.
func (m *Modeler) loginFrequencyBaselines(ctx context.Context, tenantID string) ([]rule.Baseline, error) {
	periodSeconds := m.cfg.CalculationPeriodDays * 24 * 3600
	rows, err := m.events.QueryAggregate(ctx, loginFrequencyQuery, []interface{}{tenantID, periodSeconds})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var out []rule.Baseline
	for _, row := range rows {
		entityID, ok := asString(row["entity_id"])
		if !ok || entityID == "" {
			continue
		}
		hoursObserved := asFloat(row["hours_observed"])
		avgLogins := asFloat(row["avg_logins_per_hour"])
		stddev := math.Max(avgLogins*0.3, 0.1)
		confidence := confidenceScore(int(hoursObserved), coefficientOfVariation(stddev, avgLogins))

		out = append(out, rule.Baseline{
			BaselineID:            uuid.NewString(),
			TenantID:              tenantID,
			EntityID:              entityID,
			EntityType:            "user",
			Metric:                "login_count_per_hour",
			BaselineValueAvg:      avgLogins,
			BaselineValueStddev:   stddev,
			SampleCount:           int(hoursObserved),
			CalculationPeriodDays: m.cfg.CalculationPeriodDays,
			ConfidenceScore:       confidence,
			LastUpdated:           now,
			CreatedAt:             now,
		})
	}
	return out, nil
}

const dataEgressQuery = `
WITH server_daily_traffic AS (
	SELECT source_ip::text AS entity_id,
	       date_trunc('day', event_timestamp) AS day_bucket,
	       SUM(bytes_out) AS daily_bytes_out
	FROM events
	WHERE tenant_id = $1
	  AND bytes_out > 0
	  AND source_ip IS NOT NULL
	  AND event_timestamp > now() - ($2 * interval '1 second')
	GROUP BY source_ip, day_bucket
)
SELECT entity_id,
       SUM(daily_bytes_out) AS total_bytes_out,
       COUNT(DISTINCT day_bucket) AS days_observed,
       AVG(daily_bytes_out) AS avg_bytes_per_day
FROM server_daily_traffic
GROUP BY entity_id
HAVING COUNT(DISTINCT day_bucket) >= 7
ORDER BY entity_id
`

// dataEgressBaselines computes mean bytes_out/day per source_ip, requiring
// at least 7 observed days, estimating stddev as 40% of mean (floor 1024).
func (m *Modeler) dataEgressBaselines(ctx context.Context, tenantID string) ([]rule.Baseline, error) {
	periodSeconds := m.cfg.CalculationPeriodDays * 24 * 3600
	rows, err := m.events.QueryAggregate(ctx, dataEgressQuery, []interface{}{tenantID, periodSeconds})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var out []rule.Baseline
	for _, row := range rows {
		entityID, ok := asString(row["entity_id"])
		if !ok || entityID == "" {
			continue
		}
		daysObserved := asFloat(row["days_observed"])
		avgBytes := asFloat(row["avg_bytes_per_day"])
		stddev := math.Max(avgBytes*0.4, 1024)
		confidence := confidenceScore(int(daysObserved), coefficientOfVariation(stddev, avgBytes))

		out = append(out, rule.Baseline{
			BaselineID:            uuid.NewString(),
			TenantID:              tenantID,
			EntityID:              entityID,
			EntityType:            "server",
			Metric:                "bytes_out_per_day",
			BaselineValueAvg:      avgBytes,
			BaselineValueStddev:   stddev,
			SampleCount:           int(daysObserved),
			CalculationPeriodDays: m.cfg.CalculationPeriodDays,
			ConfidenceScore:       confidence,
			LastUpdated:           now,
			CreatedAt:             now,
		})
	}
	return out, nil
}

const hourlyActivityQuery = `
WITH user_hourly_activity AS (
	SELECT user_name AS entity_id,
	       date_trunc('day', event_timestamp) AS day_bucket,
	       EXTRACT(HOUR FROM event_timestamp)::int AS hour_of_day,
	       COUNT(*) AS activity_count
	FROM events
	WHERE tenant_id = $1
	  AND user_name IS NOT NULL
	  AND user_name <> ''
	  AND event_timestamp > now() - ($2 * interval '1 second')
	GROUP BY user_name, day_bucket, hour_of_day
)
SELECT entity_id,
       hour_of_day,
       activity_count AS avg_activity
FROM user_hourly_activity
ORDER BY entity_id, hour_of_day
`

// hourlyVarianceBaselines groups by (user, hour-of-day) and computes the
// population variance of the per-day activity count within each bucket,
// requiring at least 3 samples per hour.
func (m *Modeler) hourlyVarianceBaselines(ctx context.Context, tenantID string) ([]rule.Baseline, error) {
	periodSeconds := m.cfg.CalculationPeriodDays * 24 * 3600
	rows, err := m.events.QueryAggregate(ctx, hourlyActivityQuery, []interface{}{tenantID, periodSeconds})
	if err != nil {
		return nil, err
	}

	type bucket struct {
		entityID string
		hour     int64
		samples  []float64
	}
	buckets := map[string]*bucket{}
	var order []string
	for _, row := range rows {
		entityID, ok := asString(row["entity_id"])
		if !ok || entityID == "" {
			continue
		}
		hour := int64(asFloat(row["hour_of_day"]))
		key := fmt.Sprintf("%s:%d", entityID, hour)
		b, exists := buckets[key]
		if !exists {
			b = &bucket{entityID: entityID, hour: hour}
			buckets[key] = b
			order = append(order, key)
		}
		b.samples = append(b.samples, asFloat(row["avg_activity"]))
	}

	now := time.Now().UTC()
	var out []rule.Baseline
	for _, key := range order {
		b := buckets[key]
		if len(b.samples) < 3 {
			continue
		}
		mean := sum(b.samples) / float64(len(b.samples))
		variance := 0.0
		for _, v := range b.samples {
			d := v - mean
			variance += d * d
		}
		variance /= float64(len(b.samples))
		stddev := math.Sqrt(variance)
		confidence := confidenceScore(len(b.samples), coefficientOfVariation(stddev, mean))

		out = append(out, rule.Baseline{
			BaselineID:            uuid.NewString(),
			TenantID:              tenantID,
			EntityID:              b.entityID,
			EntityType:            "user",
			Metric:                fmt.Sprintf("hourly_activity_hour_%d", b.hour),
			BaselineValueAvg:      mean,
			BaselineValueStddev:   stddev,
			SampleCount:           len(b.samples),
			CalculationPeriodDays: m.cfg.CalculationPeriodDays,
			ConfidenceScore:       confidence,
			LastUpdated:           now,
			CreatedAt:             now,
		})
	}
	return out, nil
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func asString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	case nil:
		return "", false
	default:
		return fmt.Sprintf("%v", s), true
	}
}
