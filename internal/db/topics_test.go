package db

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTopicRecord(t *testing.T) {
	rec := TopicRecord{
		ClusterID:   uuid.New(),
		Title:       "Парламентские выборы",
		TitleSource: "generated",
		Keywords:    []string{"выборы", "парламент"},
		Size:        2,
		Members: []TopicPost{
			{PostID: 10, Similarity: 0.91, IsPrimary: true},
			{PostID: 11, Similarity: 0.85},
		},
	}

	assert.Len(t, rec.Members, 2)
	assert.True(t, rec.Members[0].IsPrimary)
	assert.False(t, rec.Members[1].IsPrimary)
}

func TestSaveStats(t *testing.T) {
	stats := SaveStats{TopicsSaved: 3, PostsLinked: 40, LinksFailed: 2}
	assert.Equal(t, 3, stats.TopicsSaved)
	assert.Equal(t, 40, stats.PostsLinked)
	assert.Equal(t, 2, stats.LinksFailed)
}
