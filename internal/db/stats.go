package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Joseda-hg/taskflow/internal/model"
)

const statColumns = `owner_id, date, tasks_total, tasks_completed, tasks_overdue, tasks_postponed,
	minutes_planned, minutes_completed, load_score, all_done, updated_at`

// UpsertDailyStat replaces the (owner, date) snapshot with stat.
func (s *Store) UpsertDailyStat(ctx context.Context, owner int64, stat model.DailyStat) (model.DailyStat, error) {
	stat.OwnerID = owner
	stat.UpdatedAt = s.now().UTC()
	if _, err := s.q.ExecContext(ctx, `INSERT INTO daily_stats (`+statColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, date) DO UPDATE SET
			tasks_total = excluded.tasks_total,
			tasks_completed = excluded.tasks_completed,
			tasks_overdue = excluded.tasks_overdue,
			tasks_postponed = excluded.tasks_postponed,
			minutes_planned = excluded.minutes_planned,
			minutes_completed = excluded.minutes_completed,
			load_score = excluded.load_score,
			all_done = excluded.all_done,
			updated_at = excluded.updated_at`,
		owner, stat.Date, stat.TasksTotal, stat.TasksCompleted, stat.TasksOverdue, stat.TasksPostponed,
		stat.MinutesPlanned, stat.MinutesCompleted, stat.LoadScore, stat.AllDone, stat.UpdatedAt); err != nil {
		return model.DailyStat{}, fmt.Errorf("upsert daily stat %s: %w", stat.Date, err)
	}
	return stat, nil
}

func (s *Store) GetDailyStat(ctx context.Context, owner int64, date string) (model.DailyStat, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+statColumns+` FROM daily_stats WHERE owner_id = ? AND date = ?`, owner, date)
	stat, err := scanStat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DailyStat{}, fmt.Errorf("daily stat %s: %w", date, ErrNotFound)
	}
	if err != nil {
		return model.DailyStat{}, fmt.Errorf("get daily stat %s: %w", date, err)
	}
	return stat, nil
}

// ListDailyStats returns the snapshots with from <= date <= to, oldest first.
// Dates are compared as YYYY-MM-DD strings.
func (s *Store) ListDailyStats(ctx context.Context, owner int64, from, to string) ([]model.DailyStat, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+statColumns+` FROM daily_stats
		WHERE owner_id = ? AND date >= ? AND date <= ? ORDER BY date`, owner, from, to)
	if err != nil {
		return nil, fmt.Errorf("list daily stats: %w", err)
	}
	defer rows.Close()

	stats := []model.DailyStat{}
	for rows.Next() {
		stat, err := scanStat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

func scanStat(row rowScanner) (model.DailyStat, error) {
	var stat model.DailyStat
	if err := row.Scan(&stat.OwnerID, &stat.Date, &stat.TasksTotal, &stat.TasksCompleted, &stat.TasksOverdue,
		&stat.TasksPostponed, &stat.MinutesPlanned, &stat.MinutesCompleted, &stat.LoadScore, &stat.AllDone,
		&stat.UpdatedAt); err != nil {
		return model.DailyStat{}, err
	}
	stat.UpdatedAt = stat.UpdatedAt.UTC()
	return stat, nil
}
