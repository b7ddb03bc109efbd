package costs

import (
	"fmt"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	. "github.com/wayfarelabs/faregate/internal/logging"
)

// DefaultReportSchedule logs a usage summary daily at midnight.
const DefaultReportSchedule = "@daily"

// Reporter periodically logs a spend summary from the tracker. The
// schedule is a standard 5-field cron expression or descriptor
// (@daily, @hourly), evaluated in local time.
type Reporter struct {
	tracker  *Tracker
	schedule cronlib.Schedule
	expr     string

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReporter parses the cron expression and returns a stopped reporter.
func NewReporter(tracker *Tracker, expr string) (*Reporter, error) {
	if expr == "" {
		expr = DefaultReportSchedule
	}

	parser := cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom |
		cronlib.Month | cronlib.Dow | cronlib.Descriptor)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("costs: invalid report schedule %q: %w", expr, err)
	}

	return &Reporter{tracker: tracker, schedule: schedule, expr: expr}, nil
}

// Start launches the report loop.
func (r *Reporter) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("costs: reporter already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	L_info("costs: usage reporter started", "schedule", r.expr)
	go r.runLoop()
	return nil
}

// Stop halts the report loop and waits for it to finish.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	<-r.doneCh
	L_info("costs: usage reporter stopped")
}

func (r *Reporter) runLoop() {
	defer close(r.doneCh)

	for {
		next := r.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-timer.C:
			r.report()
		case <-r.stopCh:
			timer.Stop()
			return
		}
	}
}

// report logs the current totals and the per-model breakdown.
func (r *Reporter) report() {
	s := r.tracker.Summary()
	if s.RequestCount == 0 {
		L_debug("costs: no usage to report")
		return
	}

	L_info("costs: usage report",
		"requests", s.RequestCount,
		"inputTokens", s.TotalInputTokens,
		"outputTokens", s.TotalOutputTokens,
		"totalCost", FormatCost(s.TotalCost))

	for model, agg := range s.ByModel {
		L_info("costs: usage by model",
			"model", model,
			"requests", agg.RequestCount,
			"cost", FormatCost(agg.TotalCost))
	}
}
