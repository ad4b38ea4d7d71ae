package batchsched

import (
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/darkermemo/sim6-sub001/internal/ruledsl"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateScheduleCron validates (without executing) an optional
// schedule_cron expression at rule-creation time, using robfig/cron/v3's
// standard five-field parser — wiring the real dependency the teacher's
// own parseNextCronExecution stood in for by hand.
func ValidateScheduleCron(expr string) error {
	_, err := cronParser.Parse(expr)
	return err
}

// NextCronInterval derives the effective schedule_sec-equivalent interval
// for a validated cron expression by measuring the gap to its next
// scheduled fire time from now, so the scheduler's per-tick cadence check
// can treat schedule_cron the same way it treats schedule_sec.
func NextCronInterval(expr string, now time.Time) (time.Duration, bool) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return 0, false
	}
	next := schedule.Next(now)
	if next.IsZero() {
		return 0, false
	}
	interval := next.Sub(now)
	if interval <= 0 {
		return 0, false
	}
	return interval, true
}

func decodeDSL(raw []byte, dsl *ruledsl.DSL) error {
	return json.Unmarshal(raw, dsl)
}
