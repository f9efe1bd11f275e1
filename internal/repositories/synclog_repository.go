package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maukemana/sync-engine/internal/database"
	"github.com/maukemana/sync-engine/internal/models"
)

// SyncLogRepository persists the append-only SyncLog run history.
type SyncLogRepository struct {
	db *database.DB
}

func NewSyncLogRepository(db *database.DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

const syncLogColumns = `log_id, sync_type, start_time, end_time, status, stats, error_logs, config, progress`

// Create opens a new SyncLog row with status=running, per spec.md §4.G.
func (r *SyncLogRepository) Create(ctx context.Context, log *models.SyncLog) error {
	const q = `INSERT INTO sync_logs (` + syncLogColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.db.ExecContext(ctx, q,
		log.LogID, log.SyncType, log.StartTime, log.EndTime, log.Status,
		log.Stats, log.ErrorLogs, log.Config, log.Progress,
	)
	if err != nil {
		return fmt.Errorf("repositories: create sync log %s: %w", log.LogID, err)
	}
	return nil
}

// UpdateProgress writes the current progress snapshot for a running sync.
func (r *SyncLogRepository) UpdateProgress(ctx context.Context, logID string, progress models.SyncProgress) error {
	const q = `UPDATE sync_logs SET progress = $1 WHERE log_id = $2`
	_, err := r.db.ExecContext(ctx, q, progress, logID)
	if err != nil {
		return fmt.Errorf("repositories: update progress for %s: %w", logID, err)
	}
	return nil
}

// UpdateStatus closes out or updates a run's status, stats, and error trail.
func (r *SyncLogRepository) UpdateStatus(ctx context.Context, logID string, status models.SyncStatus, stats models.SyncStats, errorLogs models.ErrorLogList, endTime *time.Time) error {
	const q = `UPDATE sync_logs SET status = $1, stats = $2, error_logs = $3, end_time = $4 WHERE log_id = $5`
	_, err := r.db.ExecContext(ctx, q, status, stats, errorLogs, endTime, logID)
	if err != nil {
		return fmt.Errorf("repositories: update status for %s: %w", logID, err)
	}
	return nil
}

// FindByID returns one sync log row.
func (r *SyncLogRepository) FindByID(ctx context.Context, logID string) (*models.SyncLog, error) {
	const q = `SELECT ` + syncLogColumns + ` FROM sync_logs WHERE log_id = $1`
	var out models.SyncLog
	err := r.db.QueryRowxContext(ctx, q, logID).StructScan(&out)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: find sync log %s: %w", logID, err)
	}
	return &out, nil
}

// FindLastSuccessful returns the most recent completed run, used by
// incremental mode to compute its cutoff (spec.md §4.F).
func (r *SyncLogRepository) FindLastSuccessful(ctx context.Context) (*models.SyncLog, error) {
	const q = `SELECT ` + syncLogColumns + ` FROM sync_logs WHERE status = $1 ORDER BY start_time DESC LIMIT 1`
	var out models.SyncLog
	err := r.db.QueryRowxContext(ctx, q, models.SyncCompleted).StructScan(&out)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: find last successful sync log: %w", err)
	}
	return &out, nil
}

// FindRecent returns the most recent runs, newest first, per spec.md §4.G.
func (r *SyncLogRepository) FindRecent(ctx context.Context, limit int) ([]*models.SyncLog, error) {
	const q = `SELECT ` + syncLogColumns + ` FROM sync_logs ORDER BY start_time DESC LIMIT $1`
	return r.query(ctx, q, limit)
}

// FilterOptions narrows FindFiltered's scan, per spec.md §4.G findFiltered.
type FilterOptions struct {
	Status    *models.SyncStatus
	Mode      *models.SyncType
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	Limit     int
}

// FindFiltered returns a paginated, filtered view of the run history for the
// GET /sync/history endpoint.
func (r *SyncLogRepository) FindFiltered(ctx context.Context, opts FilterOptions) ([]*models.SyncLog, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Status != nil {
		conds = append(conds, "status = "+arg(*opts.Status))
	}
	if opts.Mode != nil {
		conds = append(conds, "sync_type = "+arg(*opts.Mode))
	}
	if opts.StartDate != nil {
		conds = append(conds, "start_time >= "+arg(*opts.StartDate))
	}
	if opts.EndDate != nil {
		conds = append(conds, "start_time <= "+arg(*opts.EndDate))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := (page - 1) * limit

	countQ := "SELECT count(*) FROM sync_logs " + where
	var total int
	if err := r.db.QueryRowxContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repositories: count sync logs: %w", err)
	}

	limitArg := arg(limit)
	offsetArg := arg(offset)
	listQ := fmt.Sprintf("SELECT %s FROM sync_logs %s ORDER BY start_time DESC LIMIT %s OFFSET %s",
		syncLogColumns, where, limitArg, offsetArg)

	records, err := r.query(ctx, listQ, args...)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *SyncLogRepository) query(ctx context.Context, q string, args ...interface{}) ([]*models.SyncLog, error) {
	rows, err := r.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("repositories: query sync logs: %w", err)
	}
	defer rows.Close()

	var out []*models.SyncLog
	for rows.Next() {
		var l models.SyncLog
		if err := rows.StructScan(&l); err != nil {
			return nil, fmt.Errorf("repositories: scan sync log: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
