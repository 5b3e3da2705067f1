package db

import (
	"context"
	"fmt"
)

type Initiative struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// RecordInitiative logs an unsolicited message that was sent to a user.
func (d *DB) RecordInitiative(ctx context.Context, userID, content string) error {
	_, err := d.conn.ExecContext(ctx, "INSERT INTO initiatives (user_id, content) VALUES (?, ?)", userID, content)
	if err != nil {
		return fmt.Errorf("recording initiative: %w", err)
	}
	return nil
}

// RecentInitiatives returns the latest initiatives for a user, newest first.
func (d *DB) RecentInitiatives(ctx context.Context, userID string, limit int) ([]Initiative, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := d.conn.QueryContext(ctx,
		"SELECT id, user_id, content, created_at FROM initiatives WHERE user_id = ? ORDER BY id DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing initiatives: %w", err)
	}
	defer rows.Close()
	var out []Initiative
	for rows.Next() {
		var i Initiative
		if err := rows.Scan(&i.ID, &i.UserID, &i.Content, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning initiative: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
