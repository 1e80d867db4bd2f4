package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Submit appends a feedback record stamped with the current time and adds
// each cause to the frequency table. Duplicate causes count once per
// occurrence. Both writes commit together.
func (db *DB) Submit(ctx context.Context, feedback string, causes []string) (FeedbackRecord, error) {
	if causes == nil {
		causes = []string{}
	}
	causesJSON, err := json.Marshal(causes)
	if err != nil {
		return FeedbackRecord{}, fmt.Errorf("encoding causes: %w", err)
	}

	ts := db.now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return FeedbackRecord{}, fmt.Errorf("begin submit: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO feedback (submitted_at, body, causes) VALUES (?, ?, ?)`,
		ts.Format(time.RFC3339Nano), feedback, string(causesJSON),
	)
	if err != nil {
		return FeedbackRecord{}, fmt.Errorf("inserting feedback: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return FeedbackRecord{}, fmt.Errorf("reading feedback id: %w", err)
	}

	for _, cause := range causes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cause_counts (cause, count) VALUES (?, 1)
			 ON CONFLICT(cause) DO UPDATE SET count = count + 1`,
			cause,
		); err != nil {
			return FeedbackRecord{}, fmt.Errorf("counting cause %q: %w", cause, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return FeedbackRecord{}, fmt.Errorf("commit submit: %w", err)
	}

	return FeedbackRecord{
		ID:         id,
		Timestamp:  ts,
		Feedback:   feedback,
		MainCauses: append([]string(nil), causes...),
	}, nil
}

// AllRecords returns every feedback record in submission order.
func (db *DB) AllRecords(ctx context.Context) ([]FeedbackRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, submitted_at, body, causes FROM feedback ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []FeedbackRecord
	for rows.Next() {
		var r FeedbackRecord
		var submittedAt, causesJSON string
		if err := rows.Scan(&r.ID, &submittedAt, &r.Feedback, &causesJSON); err != nil {
			return nil, err
		}
		r.Timestamp, err = time.Parse(time.RFC3339Nano, submittedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp of feedback %d: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(causesJSON), &r.MainCauses); err != nil {
			return nil, fmt.Errorf("decoding causes of feedback %d: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Reset removes all feedback and cause counts in one transaction.
func (db *DB) Reset(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM feedback`); err != nil {
		return fmt.Errorf("clearing feedback: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cause_counts`); err != nil {
		return fmt.Errorf("clearing cause counts: %w", err)
	}
	return tx.Commit()
}

// Stats returns aggregate counts over the store.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM feedback),
			(SELECT COUNT(*) FROM cause_counts),
			(SELECT COALESCE(SUM(count), 0) FROM cause_counts)`,
	).Scan(&s.TotalFeedback, &s.UniqueCauses, &s.TotalOccurrences)
	return s, err
}
