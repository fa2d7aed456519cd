// Package settings provides the persisted, typed configuration for the topic
// modeling pipeline. Values can be changed from the UI between runs; each run
// takes an immutable snapshot at start.
package settings

// Settings holds every tunable of the pipeline. Out-of-range values are
// clamped to the nearest bound rather than rejected, so the pipeline is
// always runnable with best-effort parameters.
type Settings struct {
	// Models and resources
	SearchDevice     string `json:"search_device"`
	ClusteringDevice string `json:"clustering_device"`

	// Clustering
	MinClusterSize  int  `json:"hdbscan_min_cluster_size"`
	MinSamples      int  `json:"hdbscan_min_samples"`
	AutoMergeTopics bool `json:"nr_topics_auto"`
	MaxTopics       int  `json:"max_topics"`
	NeighborCount   int  `json:"umap_n_neighbors"`
	ReducedDim      int  `json:"umap_n_components"`

	// Title generation
	UseLLMForTitles  bool    `json:"use_llm_for_titles"`
	TitleModel       string  `json:"title_model"`
	TitleTemperature float64 `json:"title_temperature"`
	TitleMaxTokens   int     `json:"title_max_tokens"`
	TitleTimeoutSec  float64 `json:"title_timeout_sec"`
	MaxTitleLength   int     `json:"max_title_length"`
	NumSampleTexts   int     `json:"num_sample_texts"`

	// Performance
	QdrantBatchSize       int   `json:"batch_size_qdrant"`
	MaxPostsForClustering int   `json:"max_posts_for_clustering"`
	RerunIntervalHours    int   `json:"rerun_interval_hours"`
	RandomSeed            int64 `json:"random_seed"`
}

// Default returns the settings used when no file exists yet.
func Default() Settings {
	return Settings{
		SearchDevice:          "cpu",
		ClusteringDevice:      "cpu",
		MinClusterSize:        3,
		MinSamples:            1,
		AutoMergeTopics:       true,
		MaxTopics:             100,
		NeighborCount:         15,
		ReducedDim:            5,
		UseLLMForTitles:       true,
		TitleModel:            "gemini-1.5-flash",
		TitleTemperature:      0.25,
		TitleMaxTokens:        50,
		TitleTimeoutSec:       30,
		MaxTitleLength:        100,
		NumSampleTexts:        3,
		QdrantBatchSize:       50,
		MaxPostsForClustering: 50000,
		RerunIntervalHours:    24,
		RandomSeed:            42,
	}
}

type intBound struct {
	val      *int
	min, max int
}

type floatBound struct {
	val      *float64
	min, max float64
}

// Clamp forces every numeric field into its documented range and every enum
// field onto a valid choice. It never reports an error.
func (s *Settings) Clamp() {
	ints := []intBound{
		{&s.MinClusterSize, 2, 50},
		{&s.MinSamples, 1, 25},
		{&s.MaxTopics, 10, 1000},
		{&s.NeighborCount, 5, 200},
		{&s.ReducedDim, 2, 50},
		{&s.TitleMaxTokens, 16, 256},
		{&s.MaxTitleLength, 20, 200},
		{&s.NumSampleTexts, 1, 10},
		{&s.QdrantBatchSize, 10, 1000},
		{&s.MaxPostsForClustering, 1000, 200000},
		{&s.RerunIntervalHours, 1, 168},
	}
	for _, b := range ints {
		if *b.val < b.min {
			*b.val = b.min
		}
		if *b.val > b.max {
			*b.val = b.max
		}
	}

	floats := []floatBound{
		{&s.TitleTemperature, 0.05, 1.0},
		{&s.TitleTimeoutSec, 5, 120},
	}
	for _, b := range floats {
		if *b.val < b.min {
			*b.val = b.min
		}
		if *b.val > b.max {
			*b.val = b.max
		}
	}

	if s.SearchDevice != "cpu" && s.SearchDevice != "cuda" {
		s.SearchDevice = "cpu"
	}
	if s.ClusteringDevice != "cpu" && s.ClusteringDevice != "cuda" {
		s.ClusteringDevice = "cpu"
	}
	if s.TitleModel == "" {
		s.TitleModel = Default().TitleModel
	}
	if s.RandomSeed < 0 {
		s.RandomSeed = 0
	}
}

// Group describes one block of related settings for the UI.
type Group struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Fields      []string `json:"fields"`
}

// Groups returns the UI grouping of setting keys.
func Groups() []Group {
	return []Group{
		{
			ID:          "models",
			Title:       "Models and resources",
			Description: "Device placement hints for the two embedding spaces.",
			Fields:      []string{"search_device", "clustering_device"},
		},
		{
			ID:          "clustering",
			Title:       "Clustering",
			Description: "Projection and density clustering tuning.",
			Fields: []string{
				"hdbscan_min_cluster_size", "hdbscan_min_samples",
				"nr_topics_auto", "max_topics",
				"umap_n_neighbors", "umap_n_components", "random_seed",
			},
		},
		{
			ID:          "titles",
			Title:       "Title generation",
			Description: "LLM call parameters and title post-processing.",
			Fields: []string{
				"use_llm_for_titles", "title_model", "title_temperature",
				"title_max_tokens", "title_timeout_sec",
				"max_title_length", "num_sample_texts",
			},
		},
		{
			ID:          "performance",
			Title:       "Performance",
			Description: "Limits that keep runs bounded on local hardware.",
			Fields: []string{
				"batch_size_qdrant", "max_posts_for_clustering",
				"rerun_interval_hours",
			},
		},
	}
}
