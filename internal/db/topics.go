package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// SaveTopics upserts the topics and their post links. A topic that fails to
// upsert aborts the save; a single post link that fails is logged, counted
// in the stats and skipped, so one bad post does not lose a whole run.
func (db *DB) SaveTopics(ctx context.Context, topics []TopicRecord, log *logrus.Entry) (SaveStats, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	stats := SaveStats{}
	for _, topic := range topics {
		statsJSON, err := json.Marshal(map[string]any{
			"keywords":     topic.Keywords,
			"size":         topic.Size,
			"title_source": topic.TitleSource,
		})
		if err != nil {
			return stats, fmt.Errorf("failed to marshal stats for topic %s: %w", topic.ClusterID, err)
		}

		_, err = db.pool.Exec(ctx,
			`INSERT INTO dedup_clusters (cluster_id, title, summary, stats, created_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 ON CONFLICT (cluster_id) DO UPDATE
			 SET title = EXCLUDED.title, summary = EXCLUDED.summary,
			     stats = EXCLUDED.stats, updated_at = NOW()`,
			topic.ClusterID, topic.Title, topic.Summary, statsJSON,
		)
		if err != nil {
			return stats, fmt.Errorf("failed to save topic %s: %w", topic.ClusterID, err)
		}
		stats.TopicsSaved++

		for _, member := range topic.Members {
			_, err := db.pool.Exec(ctx,
				`INSERT INTO cluster_messages (cluster_id, message_id, similarity_score, is_primary)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (cluster_id, message_id) DO UPDATE
				 SET similarity_score = EXCLUDED.similarity_score,
				     is_primary = EXCLUDED.is_primary`,
				topic.ClusterID, member.PostID, member.Similarity, member.IsPrimary,
			)
			if err != nil {
				stats.LinksFailed++
				log.WithError(err).WithFields(logrus.Fields{
					"cluster": topic.ClusterID,
					"post":    member.PostID,
				}).Warn("failed to link post to topic")
				continue
			}
			stats.PostsLinked++
		}
	}
	return stats, nil
}

// SaveEmbeddingMetadata upserts one bookkeeping row per message and
// collection, mapping the message to its vector. Row failures are logged and
// skipped; losing one mapping never fails the run.
func (db *DB) SaveEmbeddingMetadata(ctx context.Context, recs []EmbeddingRecord, log *logrus.Entry) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	failed := 0
	for _, rec := range recs {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO embeddings (message_id, model, vector_id, embedding_dim, collection_name, updated_at)
			 VALUES ($1, $2, $3, $4, $5, NOW())
			 ON CONFLICT (message_id, collection_name) DO UPDATE
			 SET model = EXCLUDED.model, vector_id = EXCLUDED.vector_id,
			     embedding_dim = EXCLUDED.embedding_dim, updated_at = NOW()`,
			rec.MessageID, rec.Model, rec.VectorID, rec.Dimension, rec.Collection,
		)
		if err != nil {
			failed++
			log.WithError(err).WithFields(logrus.Fields{
				"message":    rec.MessageID,
				"collection": rec.Collection,
			}).Warn("failed to save embedding metadata row")
		}
	}
	if failed > 0 {
		log.WithField("failed", failed).Warn("some embedding metadata rows were not saved")
	}
	return nil
}
