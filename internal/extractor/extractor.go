// Package extractor turns a raw session transcript into memoriesText plus
// structured entities/relationships via a single LLM call, with
// per-session caching, call deduplication via singleflight.Group, and a
// global concurrency cap enforced by a semaphore.Weighted.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"ragmemory/internal/errs"
	"ragmemory/internal/logging"
	"ragmemory/internal/model"
)

// Extractor turns a Session's transcript into an ExtractResult.
type Extractor interface {
	Extract(ctx context.Context, sess model.Session) (model.ExtractResult, error)
}

const systemPrompt = `You extract durable memory from a conversation transcript.

Respond with a JSON object with exactly these fields:
{
  "memoriesText": "one short factual statement per line, each 4-300 characters, no bullet markers",
  "entities": [{"name": "...", "type": "...", "summary": "..."}],
  "relationships": [{"source": "...", "relation": "...", "target": "...", "date": "YYYY-MM-DD"}]
}

Only extract facts, entities, and relationships actually stated or strongly implied in the transcript. Use lowercase snake_case entity names. Omit date when unknown. Return nothing but the JSON object.`

// openAIExtractor is an Extractor backed by a single OpenAI chat
// completion per session, wrapped in per-session result caching, call
// deduplication, and a global concurrency cap.
type openAIExtractor struct {
	client openai.Client
	model  string

	cache resultCache
	group singleflight.Group
	sem   *semaphore.Weighted
}

// New constructs an OpenAI-backed Extractor. cacheSize bounds the number
// of cached per-session results for the default in-process LRU cache;
// concurrency bounds the number of in-flight LLM calls across all
// callers. When redisURL is non-empty, the per-session cache is backed by
// Redis instead, so multiple process instances share extraction results.
func New(apiKey, chatModel string, cacheSize, concurrency int, redisURL string) (Extractor, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	if concurrency <= 0 {
		concurrency = 300
	}

	var cache resultCache
	var err error
	if redisURL != "" {
		cache, err = newRedisCache(redisURL)
	} else {
		cache, err = newLRUCache(cacheSize)
	}
	if err != nil {
		return nil, err
	}

	return &openAIExtractor{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  chatModel,
		cache:  cache,
		sem:    semaphore.NewWeighted(int64(concurrency)),
	}, nil
}

// Extract returns the cached result for sess.SessionID if present;
// otherwise it acquires a concurrency slot (deduplicating concurrent
// calls for the same session via singleflight) and calls the LLM.
func (e *openAIExtractor) Extract(ctx context.Context, sess model.Session) (model.ExtractResult, error) {
	if cached, ok := e.cache.Get(sess.SessionID); ok {
		return cached, nil
	}

	v, err, _ := e.group.Do(sess.SessionID, func() (any, error) {
		if cached, ok := e.cache.Get(sess.SessionID); ok {
			return cached, nil
		}
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return model.ExtractResult{}, errs.Unavailable("extractor: failed to acquire concurrency slot", err)
		}
		defer e.sem.Release(1)

		result, err := e.callLLM(ctx, sess)
		if err != nil {
			return model.ExtractResult{}, err
		}
		e.cache.Add(sess.SessionID, result)
		return result, nil
	})
	if err != nil {
		return model.ExtractResult{}, err
	}
	return v.(model.ExtractResult), nil
}

func (e *openAIExtractor) callLLM(ctx context.Context, sess model.Session) (model.ExtractResult, error) {
	transcript := renderTranscript(sess)
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(transcript),
		},
		Model: openai.ChatModel(e.model),
	}

	comp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.ExtractResult{}, errs.Unavailable("extractor: chat completion failed", err)
	}
	if len(comp.Choices) == 0 {
		return model.ExtractResult{}, errs.Unavailable("extractor: no choices returned", nil)
	}

	return ParseExtraction(comp.Choices[0].Message.Content)
}

func renderTranscript(sess model.Session) string {
	var b strings.Builder
	for _, m := range sess.Messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

// rawExtraction is the wire shape the LLM is asked to emit.
type rawExtraction struct {
	MemoriesText  string                        `json:"memoriesText"`
	Entities      []model.ExtractedEntity       `json:"entities"`
	Relationships []model.ExtractedRelationship `json:"relationships"`
}

// ParseExtraction leniently parses an LLM response into an ExtractResult.
// It tolerates a response wrapped in a markdown code fence and falls back
// to treating the whole response as memoriesText (with no structured
// entities/relationships) if it isn't valid JSON, since a malformed
// extraction should degrade rather than drop the session's content.
func ParseExtraction(raw string) (model.ExtractResult, error) {
	cleaned := stripCodeFence(raw)

	var parsed rawExtraction
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		logging.Log.Warnf("extractor: response was not valid JSON, falling back to raw text: %v", err)
		return model.ExtractResult{MemoriesText: strings.TrimSpace(cleaned)}, nil
	}

	return model.ExtractResult{
		MemoriesText:  parsed.MemoriesText,
		Entities:      parsed.Entities,
		Relationships: parsed.Relationships,
	}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
