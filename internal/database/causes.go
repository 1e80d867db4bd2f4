package database

import (
	"context"
	"database/sql"
	"errors"
)

// CauseCounts returns the cause frequency table in first-seen order.
func (db *DB) CauseCounts(ctx context.Context) ([]CauseCount, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT cause, count FROM cause_counts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []CauseCount
	for rows.Next() {
		var c CauseCount
		if err := rows.Scan(&c.Cause, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// TopCause returns the most frequent cause. Ties go to the cause that was
// seen first. ok is false when the table is empty.
func (db *DB) TopCause(ctx context.Context) (cause string, ok bool, err error) {
	err = db.conn.QueryRowContext(ctx,
		`SELECT cause FROM cause_counts ORDER BY count DESC, id ASC LIMIT 1`,
	).Scan(&cause)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return cause, true, nil
}
