package database

import (
	"context"
	"fmt"

	"github.com/icodeforyou/solarforecast-ml/convert"
)

type LearningLogRow struct {
	Date       string
	Predicted  float64
	Actual     float64
	Error      float64
	BaseBefore float64
	BaseAfter  float64
}

// SaveLearning records the outcome of a nightly learning cycle, replacing
// an earlier record of the same day.
func (d *Database) SaveLearning(ctx context.Context, row LearningLogRow) error {
	d.logger.Debug("saving learning log",
		"date", row.Date,
		"predicted", row.Predicted,
		"actual", row.Actual,
		"base_after", row.BaseAfter)

	_, err := d.write.ExecContext(ctx, `
		INSERT INTO learning_log (date, predicted, actual, error, base_before, base_after)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			predicted = excluded.predicted,
			actual = excluded.actual,
			error = excluded.error,
			base_before = excluded.base_before,
			base_after = excluded.base_after`,
		row.Date,
		convert.RoundFloat64(row.Predicted, 3),
		convert.RoundFloat64(row.Actual, 3),
		convert.RoundFloat64(row.Error, 3),
		row.BaseBefore,
		row.BaseAfter)
	if err != nil {
		return fmt.Errorf("saving learning log: %w", err)
	}
	return nil
}

// GetLearningLog returns the most recent learning records, newest first.
func (d *Database) GetLearningLog(ctx context.Context, limit int) ([]LearningLogRow, error) {
	rows, err := d.read.QueryContext(ctx, `
		SELECT date, predicted, actual, error, base_before, base_after
		FROM learning_log
		ORDER BY date DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching learning log: %w", err)
	}
	defer rows.Close()

	var result []LearningLogRow
	for rows.Next() {
		var r LearningLogRow
		if err := rows.Scan(&r.Date, &r.Predicted, &r.Actual, &r.Error, &r.BaseBefore, &r.BaseAfter); err != nil {
			return nil, fmt.Errorf("scanning learning log row: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// PurgeLearningLog deletes records dated before the given ISO date.
func (d *Database) PurgeLearningLog(ctx context.Context, before string) error {
	res, err := d.write.ExecContext(ctx, `DELETE FROM learning_log WHERE date < ?`, before)
	if err != nil {
		return fmt.Errorf("purging learning log: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		d.logger.Debug(fmt.Sprintf("purged %d rows from learning_log", n))
	}
	return nil
}
