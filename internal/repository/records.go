package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tractionhq/coachd/internal/domain"
)

// RecordRepository provides read-only access to live operational records
// (priorities, issues, action items, metrics). The records are owned by the
// coaching dashboard; this module never writes them.
type RecordRepository struct {
	pool *pgxpool.Pool
}

func NewRecordRepository(pool *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

// Snapshot returns a compact view of current records for context assembly:
// top-N open issues by severity, top-N priorities by recency, pending action
// items, and the latest value per metric.
func (r *RecordRepository) Snapshot(ctx context.Context, topN int) (*domain.RecordSnapshot, error) {
	if topN <= 0 {
		topN = 5
	}

	snapshot := &domain.RecordSnapshot{}

	priorities, err := r.listPriorities(ctx, topN)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	snapshot.Priorities = priorities

	issues, err := r.listOpenIssues(ctx, topN)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	snapshot.Issues = issues

	actionItems, err := r.listPendingActionItems(ctx, topN)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	snapshot.ActionItems = actionItems

	metrics, err := r.listLatestMetrics(ctx)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	snapshot.Metrics = metrics

	return snapshot, nil
}

func (r *RecordRepository) listPriorities(ctx context.Context, limit int) ([]*domain.Priority, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, owner, status, created_at
		 FROM priorities
		 WHERE status != 'done'
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var priorities []*domain.Priority
	for rows.Next() {
		var p domain.Priority
		if err := rows.Scan(&p.ID, &p.Title, &p.Owner, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		priorities = append(priorities, &p)
	}
	return priorities, rows.Err()
}

func (r *RecordRepository) listOpenIssues(ctx context.Context, limit int) ([]*domain.Issue, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, severity, status, created_at
		 FROM issues
		 WHERE status = 'open'
		 ORDER BY severity DESC, created_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []*domain.Issue
	for rows.Next() {
		var i domain.Issue
		if err := rows.Scan(&i.ID, &i.Title, &i.Severity, &i.Status, &i.CreatedAt); err != nil {
			return nil, err
		}
		issues = append(issues, &i)
	}
	return issues, rows.Err()
}

func (r *RecordRepository) listPendingActionItems(ctx context.Context, limit int) ([]*domain.ActionItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, description, owner, status, due_date
		 FROM action_items
		 WHERE status = 'pending'
		 ORDER BY due_date ASC NULLS LAST, id ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.ActionItem
	for rows.Next() {
		var a domain.ActionItem
		var dueDate *time.Time
		if err := rows.Scan(&a.ID, &a.Description, &a.Owner, &a.Status, &dueDate); err != nil {
			return nil, err
		}
		a.DueDate = dueDate
		items = append(items, &a)
	}
	return items, rows.Err()
}

func (r *RecordRepository) listLatestMetrics(ctx context.Context) ([]*domain.Metric, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ON (name) id, name, value, unit, recorded_at
		 FROM metrics
		 ORDER BY name ASC, recorded_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*domain.Metric
	for rows.Next() {
		var m domain.Metric
		if err := rows.Scan(&m.ID, &m.Name, &m.Value, &m.Unit, &m.RecordedAt); err != nil {
			return nil, err
		}
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}
