package titles

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const defaultCallTimeout = 30 * time.Second

// contentGenerator is the slice of the genai model the generator needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Options configures the model call and title post-processing. Zero values
// fall back to sensible defaults.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxLength   int
	SampleCount int
}

// Generator asks Gemini for topic titles and falls back to keyword titles
// when the model is unavailable or returns something unusable.
type Generator struct {
	client  *genai.Client
	model   contentGenerator
	timeout time.Duration
	maxLen  int
	samples int
	log     *logrus.Entry
}

// New builds a generator backed by the named Gemini model. An empty API key
// yields a generator that always uses the keyword fallback.
func New(ctx context.Context, apiKey string, opts Options, log *logrus.Entry) (*Generator, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultCallTimeout
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = maxTitleRunes
	}
	if opts.SampleCount <= 0 {
		opts.SampleCount = 3
	}
	g := &Generator{timeout: opts.Timeout, maxLen: opts.MaxLength, samples: opts.SampleCount, log: log}
	if apiKey == "" {
		log.Warn("no API key configured, topic titles will use keyword fallback")
		return g, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	model := client.GenerativeModel(opts.Model)
	if opts.Temperature > 0 {
		model.SetTemperature(float32(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	g.client = client
	g.model = model
	return g, nil
}

// Close releases the underlying client. Safe to call on a fallback-only
// generator.
func (g *Generator) Close() {
	if g.client != nil {
		g.client.Close()
		g.client = nil
		g.model = nil
	}
}

// Title returns a title for the topic and the source it came from, either
// SourceLLM or SourceKeywords. It never returns an error: any model failure
// degrades to the deterministic keyword title.
func (g *Generator) Title(ctx context.Context, topicID int, keywords, samples []string) (string, string) {
	if g.model == nil {
		return KeywordTitle(keywords, topicID), SourceKeywords
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.model.GenerateContent(callCtx, genai.Text(buildPrompt(keywords, samples, g.samples)))
	if err != nil {
		g.log.WithError(err).WithField("topic", topicID).Warn("title generation failed, using keywords")
		return KeywordTitle(keywords, topicID), SourceKeywords
	}

	title := cleanTitle(extractText(resp), g.maxLen)
	if title == "" {
		g.log.WithField("topic", topicID).Warn("unusable model title, using keywords")
		return KeywordTitle(keywords, topicID), SourceKeywords
	}
	return title, SourceLLM
}

func buildPrompt(keywords, samples []string, maxSamples int) string {
	var sb strings.Builder
	sb.WriteString("Сформулируй короткое название темы новостных постов: 3-6 слов, без кавычек и пояснений.\n\n")
	sb.WriteString("Ключевые слова: ")
	sb.WriteString(strings.Join(keywords, ", "))
	sb.WriteString("\n\nПримеры постов:\n")
	for i, s := range samples {
		if i == maxSamples {
			break
		}
		if len([]rune(s)) > 300 {
			s = string([]rune(s)[:300])
		}
		sb.WriteString("- ")
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	sb.WriteString("\nОтветь только названием темы.")
	return sb.String()
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}
