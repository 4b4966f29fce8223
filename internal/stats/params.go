package stats

import (
	"strings"

	"guidestats/internal/timeframe"
)

// DefaultLimit caps ranked lists when a query does not set one.
const DefaultLimit = 10

// MaxLimit bounds caller-supplied limits.
const MaxLimit = 100

// Filters narrow every breakdown to matching visit events. Empty fields match
// everything.
type Filters struct {
	PageType string
	Device   string
	Country  string
	Region   string
}

func (f Filters) active() bool {
	return f.PageType != "" || f.Device != "" || f.Country != "" || f.Region != ""
}

// Query selects the window and filters for a dashboard.
type Query struct {
	TimeFrame *timeframe.TimeFrame
	Filters   Filters
	Limit     int
}

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultLimit
	case q.Limit > MaxLimit:
		return MaxLimit
	default:
		return q.Limit
	}
}

// visitScope renders the WHERE clause shared by all visit_events queries.
func (q Query) visitScope() (string, []any) {
	clauses := []string{"timestamp BETWEEN ? AND ?"}
	args := []any{q.TimeFrame.From.UTC(), q.TimeFrame.To.UTC()}

	f := q.Filters
	if f.PageType != "" {
		clauses = append(clauses, "page_type = ?")
		args = append(args, strings.ToLower(f.PageType))
	}
	if f.Device != "" {
		clauses = append(clauses, "device = ?")
		args = append(args, strings.ToLower(f.Device))
	}
	if f.Country != "" {
		clauses = append(clauses, "UPPER(country) = UPPER(?)")
		args = append(args, f.Country)
	}
	if f.Region != "" {
		clauses = append(clauses, "region = ?")
		args = append(args, strings.ToLower(f.Region))
	}
	return strings.Join(clauses, " AND "), args
}

// sessionScope selects sessions with at least one matching visit in the window.
func (q Query) sessionScope() (string, []any) {
	where, args := q.visitScope()
	return "session_id IN (SELECT session_id FROM visit_events WHERE " + where + ")", args
}

// customScope selects custom events in the window, restricted to matching
// sessions when filters are set.
func (q Query) customScope() (string, []any) {
	where := "timestamp BETWEEN ? AND ?"
	args := []any{q.TimeFrame.From.UTC(), q.TimeFrame.To.UTC()}
	if q.Filters.active() {
		scope, scopeArgs := q.sessionScope()
		where += " AND " + scope
		args = append(args, scopeArgs...)
	}
	return where, args
}
