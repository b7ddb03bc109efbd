// Package costs keeps the append-only usage ledger and its summaries.
package costs

import (
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarelabs/faregate/internal/catalog"
	. "github.com/wayfarelabs/faregate/internal/metrics"
)

// Usage describes one completed model invocation to be recorded.
type Usage struct {
	Model        string
	Role         string
	InputTokens  int
	OutputTokens int
	TenantID     string
}

// UsageEntry is one immutable ledger record. Cost is computed at record
// time and never recomputed, so later catalog price changes do not
// rewrite history.
type UsageEntry struct {
	ID           string    `json:"id"`
	Model        string    `json:"model"`
	Role         string    `json:"role"`
	InputTokens  int       `json:"inputTokens"`
	OutputTokens int       `json:"outputTokens"`
	Cost         float64   `json:"cost"`
	TenantID     string    `json:"tenantId"`
	Timestamp    time.Time `json:"timestamp"`
}

// Aggregate carries the four running totals every summary dimension uses.
type Aggregate struct {
	TotalCost         float64 `json:"totalCost"`
	TotalInputTokens  int     `json:"totalInputTokens"`
	TotalOutputTokens int     `json:"totalOutputTokens"`
	RequestCount      int     `json:"requestCount"`
}

func (a *Aggregate) add(e UsageEntry) {
	a.TotalCost += e.Cost
	a.TotalInputTokens += e.InputTokens
	a.TotalOutputTokens += e.OutputTokens
	a.RequestCount++
}

// Summary aggregates the ledger overall and broken down by model and role.
type Summary struct {
	Aggregate
	ByModel map[string]*Aggregate `json:"byModel"`
	ByRole  map[string]*Aggregate `json:"byRole"`
}

// Tracker is the append-only usage ledger. Safe for concurrent use; a
// single mutex guards the ledger since entries are only ever appended.
type Tracker struct {
	registry *catalog.Registry

	mu      sync.Mutex
	entries []UsageEntry

	db       *sql.DB
	pending  []UsageEntry
	stopSave chan struct{}
}

// NewTracker creates a tracker that prices entries via the registry.
func NewTracker(registry *catalog.Registry) *Tracker {
	return &Tracker{registry: registry}
}

// Record computes the entry cost, stamps it, appends it to the ledger,
// and returns the stored entry.
func (t *Tracker) Record(u Usage) UsageEntry {
	entry := UsageEntry{
		ID:           uuid.New().String(),
		Model:        u.Model,
		Role:         u.Role,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		Cost:         t.registry.Cost(u.Model, u.InputTokens, u.OutputTokens),
		TenantID:     u.TenantID,
		Timestamp:    time.Now(),
	}

	t.mu.Lock()
	t.entries = append(t.entries, entry)
	if t.db != nil {
		t.pending = append(t.pending, entry)
	}
	t.mu.Unlock()

	rolePath := "role/" + entry.Role
	MetricCost(rolePath, "cost", int64(entry.Cost*1_000_000))
	MetricAdd(rolePath, "input_tokens", int64(entry.InputTokens))
	MetricAdd(rolePath, "output_tokens", int64(entry.OutputTokens))
	MetricInc(rolePath, "requests")

	return entry
}

// Entries returns a defensive copy of the ledger in insertion order.
func (t *Tracker) Entries() []UsageEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]UsageEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Summary aggregates the whole ledger.
func (t *Tracker) Summary() *Summary {
	return t.summarize(nil)
}

// SummaryForTenant aggregates only entries recorded for one tenant.
func (t *Tracker) SummaryForTenant(tenantID string) *Summary {
	return t.summarize(func(e UsageEntry) bool { return e.TenantID == tenantID })
}

// summarize walks the ledger once, updating the overall totals and both
// breakdowns in the same pass so shared model/role entries are never
// double counted.
func (t *Tracker) summarize(filter func(UsageEntry) bool) *Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &Summary{
		ByModel: make(map[string]*Aggregate),
		ByRole:  make(map[string]*Aggregate),
	}

	for _, e := range t.entries {
		if filter != nil && !filter(e) {
			continue
		}

		s.Aggregate.add(e)

		byModel, ok := s.ByModel[e.Model]
		if !ok {
			byModel = &Aggregate{}
			s.ByModel[e.Model] = byModel
		}
		byModel.add(e)

		byRole, ok := s.ByRole[e.Role]
		if !ok {
			byRole = &Aggregate{}
			s.ByRole[e.Role] = byRole
		}
		byRole.add(e)
	}

	return s
}

// Clear empties the ledger, including any persisted entries. Session
// reset only, never a request-path operation.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = nil
	t.pending = nil
	t.clearPersistedLocked()
}

// FormatCost renders a USD amount as "$X.XX" with half-up rounding.
// The epsilon keeps values like 0.015, whose float form sits a hair
// under the half-cent boundary, rounding up as currency math expects.
func FormatCost(v float64) string {
	if v < 0 {
		v = 0
	}
	cents := int64(math.Round(v*100 + 1e-9))
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
