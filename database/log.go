package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type LogEntryRow struct {
	Timestamp time.Time
	Level     int
	Module    string
	Message   string
	Attrs     string
}

// LogQuery selects a page of log entries, newest first. An empty Module
// matches every module.
type LogQuery struct {
	MinLevel slog.Level
	Module   string
	Page     int
	PageSize int
}

func (d *Database) SaveLogEntry(ctx context.Context, r LogEntryRow) error {
	_, err := d.write.ExecContext(ctx, `
		INSERT INTO log (timestamp, level, module, message, attrs)
		VALUES (?, ?, ?, ?, ?)`,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.Level,
		r.Module,
		r.Message,
		r.Attrs)
	if err != nil {
		return fmt.Errorf("saving log entry: %w", err)
	}
	return nil
}

func (d *Database) GetLogEntries(ctx context.Context, q LogQuery) ([]LogEntryRow, error) {
	page, pageSize := max(q.Page, 1), q.PageSize
	if pageSize < 1 {
		pageSize = 25
	}

	where := []string{"level >= ?"}
	args := []any{int(q.MinLevel)}
	if q.Module != "" {
		where = append(where, "module = ?")
		args = append(args, q.Module)
	}
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := d.read.QueryContext(ctx, `
		SELECT timestamp, level, module, message, attrs
		FROM log
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY id DESC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching log entries: %w", err)
	}
	defer rows.Close()

	var entries []LogEntryRow
	for rows.Next() {
		var (
			r  LogEntryRow
			ts string
		)
		if err := rows.Scan(&ts, &r.Level, &r.Module, &r.Message, &r.Attrs); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing log timestamp %q: %w", ts, err)
		}
		entries = append(entries, r)
	}
	return entries, rows.Err()
}

// PurgeLog keeps the newest maxLogEntries entries.
func (d *Database) PurgeLog(ctx context.Context, maxLogEntries int) error {
	res, err := d.write.ExecContext(ctx, `
		DELETE FROM log
		WHERE id <= (SELECT id FROM log ORDER BY id DESC LIMIT 1 OFFSET ?)`, maxLogEntries)
	if err != nil {
		return fmt.Errorf("purging log: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		d.logger.Debug("log purged", slog.Int64("deleted", n))
	}
	return nil
}
