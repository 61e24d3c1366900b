package domain

import "time"

// Live operational records are owned by the coaching dashboard and consumed
// here read-only for context assembly. No write path exists in this module.

// Priority is a 90-day priority ("rock") owned by a team member.
type Priority struct {
	ID        string
	Title     string
	Owner     string
	Status    string
	CreatedAt time.Time
}

// Issue is an open item on the team's issues list.
type Issue struct {
	ID        string
	Title     string
	Severity  int
	Status    string
	CreatedAt time.Time
}

// ActionItem is a pending to-do captured in a meeting.
type ActionItem struct {
	ID          string
	Description string
	Owner       string
	Status      string
	DueDate     *time.Time
}

// Metric is the latest recorded value for a scorecard measurable.
type Metric struct {
	ID         string
	Name       string
	Value      float64
	Unit       string
	RecordedAt time.Time
}

// RecordSnapshot is the compact view of live records rendered into context.
type RecordSnapshot struct {
	Priorities  []*Priority
	Issues      []*Issue
	ActionItems []*ActionItem
	Metrics     []*Metric
}

// Empty reports whether the snapshot contributes nothing to context.
func (s *RecordSnapshot) Empty() bool {
	if s == nil {
		return true
	}
	return len(s.Priorities) == 0 && len(s.Issues) == 0 &&
		len(s.ActionItems) == 0 && len(s.Metrics) == 0
}
