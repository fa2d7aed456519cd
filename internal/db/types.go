package db

import (
	"time"

	"github.com/google/uuid"
)

// Post is one message fetched for topic modeling.
type Post struct {
	ID        int64     `json:"id"`
	ChannelID int64     `json:"channel_id"`
	Text      string    `json:"text"`
	Date      time.Time `json:"date"`
	Views     int       `json:"views"`
}

// TopicRecord is one clustered topic ready for persistence.
type TopicRecord struct {
	ClusterID   uuid.UUID   `json:"cluster_id"`
	Title       string      `json:"title"`
	TitleSource string      `json:"title_source"`
	Summary     string      `json:"summary"`
	Keywords    []string    `json:"keywords"`
	Size        int         `json:"size"`
	Members     []TopicPost `json:"members"`
}

// TopicPost links a post to its topic with the post's similarity to the
// topic centroid. The primary post is the topic's representative.
type TopicPost struct {
	PostID     int64   `json:"post_id"`
	Similarity float64 `json:"similarity"`
	IsPrimary  bool    `json:"is_primary"`
}

// SaveStats reports how persistence went. Link failures are non-fatal and
// surface here instead of as errors.
type SaveStats struct {
	TopicsSaved int `json:"topics_saved"`
	PostsLinked int `json:"posts_linked"`
	LinksFailed int `json:"links_failed"`
}

// EmbeddingRecord maps one message to its vector in a collection. VectorID
// is the Qdrant point id.
type EmbeddingRecord struct {
	MessageID  int64  `json:"message_id"`
	Model      string `json:"model"`
	VectorID   int64  `json:"vector_id"`
	Dimension  int    `json:"embedding_dim"`
	Collection string `json:"collection_name"`
}
