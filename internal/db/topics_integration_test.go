//go:build integration
// +build integration

package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := Connect(context.Background(), dsn)
	require.NoError(t, err)
	return db
}

func TestFetchPosts_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	_, err := db.pool.Exec(ctx,
		`INSERT INTO messages (id, channel_id, text, date, views)
		 VALUES (900001, 1, 'интеграционный тестовый пост', $1, 5)
		 ON CONFLICT (id) DO NOTHING`,
		time.Now().UTC(),
	)
	require.NoError(t, err)

	posts, err := db.FetchPosts(ctx, 10, 1)
	require.NoError(t, err)
	require.NotEmpty(t, posts)
	assert.NotEmpty(t, posts[0].Text)
}

func TestSaveTopics_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	rec := TopicRecord{
		ClusterID:   uuid.New(),
		Title:       "Тестовая тема",
		TitleSource: "fallback",
		Summary:     "выборы и парламент",
		Keywords:    []string{"выборы", "парламент"},
		Size:        1,
		Members:     []TopicPost{{PostID: 900001, Similarity: 0.99, IsPrimary: true}},
	}

	stats, err := db.SaveTopics(ctx, []TopicRecord{rec}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TopicsSaved)

	// second save of the same topic updates in place
	rec.Title = "Обновлённая тема"
	stats, err = db.SaveTopics(ctx, []TopicRecord{rec}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TopicsSaved)
}

func TestSaveEmbeddingMetadata_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	recs := []EmbeddingRecord{{
		MessageID:  900001,
		Model:      "text-embedding-004",
		VectorID:   900001,
		Dimension:  768,
		Collection: "posts_clustering",
	}}
	require.NoError(t, db.SaveEmbeddingMetadata(ctx, recs, nil))

	// second save of the same message updates in place
	recs[0].Dimension = 1024
	require.NoError(t, db.SaveEmbeddingMetadata(ctx, recs, nil))

	var dim int
	require.NoError(t, db.pool.QueryRow(ctx,
		`SELECT embedding_dim FROM embeddings WHERE message_id = $1 AND collection_name = $2`,
		int64(900001), "posts_clustering",
	).Scan(&dim))
	assert.Equal(t, 1024, dim)
}
