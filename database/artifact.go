package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetArtifact returns the stored JSON document name. The second return
// value is false when no document has been stored yet.
func (d *Database) GetArtifact(ctx context.Context, name string) ([]byte, bool, error) {
	var data string
	err := d.read.QueryRowContext(ctx, `SELECT data FROM artifact WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetching artifact %s: %w", name, err)
	}
	return []byte(data), true, nil
}

func (d *Database) SaveArtifact(ctx context.Context, name string, data []byte) error {
	_, err := d.write.ExecContext(ctx, `
		INSERT INTO artifact (name, data) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data`,
		name, string(data))
	if err != nil {
		return fmt.Errorf("saving artifact %s: %w", name, err)
	}
	return nil
}
