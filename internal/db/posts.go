package db

import (
	"context"
	"fmt"
	"time"
)

// FetchPosts returns the most recent posts with non-empty text, newest
// first. daysBack limits how far back the window reaches; zero means no
// time limit.
func (db *DB) FetchPosts(ctx context.Context, limit, daysBack int) ([]Post, error) {
	query := `SELECT id, channel_id, text, date, COALESCE(views, 0)
	          FROM messages
	          WHERE text IS NOT NULL AND length(trim(text)) > 0`
	args := []any{}
	if daysBack > 0 {
		args = append(args, time.Now().UTC().AddDate(0, 0, -daysBack))
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY date DESC LIMIT $%d", len(args))

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.ChannelID, &p.Text, &p.Date, &p.Views); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read posts: %w", err)
	}
	return posts, nil
}

// CountPosts returns how many posts would qualify for fetching.
func (db *DB) CountPosts(ctx context.Context, daysBack int) (int, error) {
	query := `SELECT COUNT(*) FROM messages
	          WHERE text IS NOT NULL AND length(trim(text)) > 0`
	args := []any{}
	if daysBack > 0 {
		args = append(args, time.Now().UTC().AddDate(0, 0, -daysBack))
		query += " AND date >= $1"
	}
	var n int
	if err := db.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}
