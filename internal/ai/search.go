// Package ai wraps the generative collaborators: semantic search over
// document text and text-to-video generation.
package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"docuflex/internal/logging"
	"docuflex/internal/metrics"
	"docuflex/internal/store"
)

// ErrUnavailable is returned when a collaborator has no credentials.
var ErrUnavailable = errors.New("ai collaborator not configured")

const searchSystemPrompt = `You are a document search assistant. You will be given a search query and the content of a set of documents.
Your task is to identify the passages from the documents that are most relevant to the search query.
Consider applying stemming, or other logic, to get best results.
Respond with a single JSON object and nothing else, shaped as:
{"relevantPassages": ["..."], "reasoning": "..."}`

// Answer is the result of a semantic search.
type Answer struct {
	RelevantPassages []string `json:"relevantPassages"`
	Reasoning        string   `json:"reasoning"`
}

// Completer sends one prompt to a language model and returns its text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// AnswerCache stores serialized answers. Implementations must treat a
// miss as (nil, false, nil).
type AnswerCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Invalidator is implemented by caches that can drop every stored answer.
type Invalidator interface {
	Invalidate(ctx context.Context) (int, error)
}

// AnthropicCompleter implements Completer with the Messages API.
type AnthropicCompleter struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

func NewAnthropicCompleter(apiKey, model string) (*AnthropicCompleter, error) {
	if apiKey == "" {
		return nil, ErrUnavailable
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicCompleter{client: &client, model: model, maxTokens: 2048}, nil
}

func (c *AnthropicCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// Searcher runs semantic search with an optional answer cache.
type Searcher struct {
	completer Completer
	cache     AnswerCache
	logger    *zap.Logger
}

// NewSearcher returns a searcher. completer may be nil, in which case every
// search fails with ErrUnavailable. cache may be nil.
func NewSearcher(completer Completer, cache AnswerCache, logger *zap.Logger) *Searcher {
	return &Searcher{completer: completer, cache: cache, logger: logging.OrNop(logger).Named("ai.search")}
}

func (s *Searcher) Available() bool {
	return s != nil && s.completer != nil
}

// FlushCache drops every cached answer and reports how many were removed.
// Caches that cannot enumerate their entries report zero.
func (s *Searcher) FlushCache(ctx context.Context) (int, error) {
	if s == nil {
		return 0, nil
	}
	inv, ok := s.cache.(Invalidator)
	if !ok {
		return 0, nil
	}
	n, err := inv.Invalidate(ctx)
	if err != nil {
		return 0, fmt.Errorf("flush answer cache: %w", err)
	}
	s.logger.Info("answer cache flushed", zap.Int("removed", n))
	return n, nil
}

// Search asks the model for the passages of corpus most relevant to query.
func (s *Searcher) Search(ctx context.Context, query, corpus string) (Answer, error) {
	if !s.Available() {
		return Answer{}, ErrUnavailable
	}

	key := CacheKey(query, corpus)
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.logger.Warn("answer cache read failed", zap.Error(err))
		case ok:
			var cached Answer
			if err := json.Unmarshal(raw, &cached); err == nil {
				metrics.RecordAICacheLookup(true)
				return cached, nil
			}
		}
		metrics.RecordAICacheLookup(false)
	}

	prompt := fmt.Sprintf("Search Query: %s\n\nDocument Content: %s\n\nReturn the most relevant passages from the documents. Also, provide a brief explanation of why those passages are relevant to the search query. Ensure the answer is easily understood by the user.", query, corpus)

	start := time.Now()
	text, err := s.completer.Complete(ctx, searchSystemPrompt, prompt)
	if err != nil {
		metrics.RecordAIRequest("semantic_search", time.Since(start), false)
		s.logger.Error("semantic search failed", zap.Error(err))
		return Answer{}, fmt.Errorf("semantic search: %w", err)
	}
	answer, err := ParseAnswer(text)
	metrics.RecordAIRequest("semantic_search", time.Since(start), err == nil)
	if err != nil {
		s.logger.Error("semantic search answer unreadable", zap.Error(err))
		return Answer{}, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(answer); err == nil {
			if err := s.cache.Set(ctx, key, raw); err != nil {
				s.logger.Warn("answer cache write failed", zap.Error(err))
			}
		}
	}
	return answer, nil
}

// ParseAnswer decodes a model reply, tolerating Markdown code fences and
// prose around the JSON object.
func ParseAnswer(text string) (Answer, error) {
	body := strings.TrimSpace(text)
	if start := strings.Index(body, "{"); start >= 0 {
		if end := strings.LastIndex(body, "}"); end > start {
			body = body[start : end+1]
		}
	}
	var answer Answer
	if err := json.Unmarshal([]byte(body), &answer); err != nil {
		return Answer{}, fmt.Errorf("decode answer: %w", err)
	}
	if answer.RelevantPassages == nil {
		answer.RelevantPassages = []string{}
	}
	return answer, nil
}

// BuildCorpus formats documents for a semantic search prompt. Folders are
// skipped.
func BuildCorpus(items []*store.Item) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if item.IsFolder() {
			continue
		}
		parts = append(parts, fmt.Sprintf("Document: %s\nContent: %s", item.Name, item.Content))
	}
	return strings.Join(parts, "\n\n")
}

// CacheKey identifies an answer by query and corpus.
func CacheKey(query, corpus string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(strings.ToLower(query)) + "\x00" + corpus))
	return hex.EncodeToString(sum[:])
}
