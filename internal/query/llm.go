// llm.go holds the cheap-LLM auxiliary calls the query pipeline makes
// besides embedding: query rewrite, counting-query sub-query generation,
// and candidate reranking. All three are issued through openai-go/v2 like
// internal/extractor, since this is the same OpenAI-compatible endpoint,
// just a cheaper chat model and a narrower prompt.
package query

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"ragmemory/internal/errs"
	"ragmemory/internal/logging"
)

// LLM is the cheap-model auxiliary interface the pipeline depends on for
// rewrite/decompose/rerank. A failure of any of these three degrades to
// the identity (no-op) rather than failing the search.
type LLM interface {
	Rewrite(ctx context.Context, query string) (string, error)
	Decompose(ctx context.Context, query string, maxSub int) ([]string, error)
	Rerank(ctx context.Context, query string, docs []string) ([]RerankScore, error)
}

// RerankScore is one {index, score} pair from the reranker's JSON array
// response.
type RerankScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// openAILLM implements LLM via chat completions against a small model.
type openAILLM struct {
	client openai.Client
	model  string
}

// NewOpenAILLM constructs an LLM backed by chatModel, expected to be a
// cheap chat model since these calls run once per query.
func NewOpenAILLM(apiKey, chatModel string) LLM {
	return &openAILLM{client: openai.NewClient(option.WithAPIKey(apiKey)), model: chatModel}
}

const rewriteSystemPrompt = `Rewrite the user's memory-search query into a single, more specific search query that would retrieve the same information from a personal conversation history. Respond with the rewritten query only, under 500 characters, on a single line. If the query is already specific, return it unchanged.`

// Rewrite expands query into a single-line, more specific search query.
// Falls back to the original query on any failure or if the rewrite is
// empty or over 500 chars.
func (l *openAILLM) Rewrite(ctx context.Context, query string) (string, error) {
	resp, err := l.complete(ctx, rewriteSystemPrompt, query)
	if err != nil {
		logging.Log.Warnf("query: rewrite failed, using original query: %v", err)
		return query, nil
	}
	rewritten := strings.TrimSpace(strings.SplitN(resp, "\n", 2)[0])
	if rewritten == "" || len(rewritten) > 500 {
		return query, nil
	}
	return rewritten, nil
}

const decomposeSystemPrompt = `The user asked a counting question about their own conversation history (e.g. "how many trips did I take?"). Produce up to %d alternative search queries, one per line, that would each surface a different subset of the answer (for example variants per likely destination, topic, or time period). Respond with the queries only, one per line, no numbering.`

// Decompose asks the LLM for up to maxSub sub-queries for a counting
// question. Falls back to no sub-queries (the pipeline then just runs the
// single main query) on failure.
func (l *openAILLM) Decompose(ctx context.Context, query string, maxSub int) ([]string, error) {
	prompt := strings.Replace(decomposeSystemPrompt, "%d", strconv.Itoa(maxSub), 1)
	resp, err := l.complete(ctx, prompt, query)
	if err != nil {
		logging.Log.Warnf("query: decomposition failed, skipping sub-queries: %v", err)
		return nil, nil
	}
	var subs []string
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		subs = append(subs, line)
		if len(subs) >= maxSub {
			break
		}
	}
	return subs, nil
}

const rerankSystemPrompt = `You are reranking search results by relevance to the query. You will receive a query and a numbered list of candidate passages. Respond with a JSON array of objects, one per candidate, each {"index": <candidate number, 0-based>, "score": <relevance 0-1>}. Respond with the JSON array only.`

// Rerank asks the LLM to score each doc's relevance to query, returning
// one RerankScore per doc it was willing to score; indices missing from
// the response default to score 0 (handled by the caller, not here).
func (l *openAILLM) Rerank(ctx context.Context, query string, docs []string) ([]RerankScore, error) {
	var b strings.Builder
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\n\nCandidates:\n")
	for i, d := range docs {
		b.WriteString(strconv.Itoa(i))
		b.WriteString(". ")
		b.WriteString(d)
		b.WriteString("\n")
	}
	resp, err := l.complete(ctx, rerankSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}
	cleaned := stripCodeFence(resp)
	var scores []RerankScore
	if err := json.Unmarshal([]byte(cleaned), &scores); err != nil {
		logging.Log.Warnf("query: rerank response was not valid JSON: %v", err)
		return nil, err
	}
	return scores, nil
}

func (l *openAILLM) complete(ctx context.Context, system, user string) (string, error) {
	comp, err := l.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model: openai.ChatModel(l.model),
	})
	if err != nil {
		return "", err
	}
	if len(comp.Choices) == 0 {
		return "", errs.Unavailable("query: LLM returned no choices", nil)
	}
	return comp.Choices[0].Message.Content, nil
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
