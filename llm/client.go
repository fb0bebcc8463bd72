// Package llm talks to an OpenAI-compatible chat-completion endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/sashabaranov/go-openai"

	"github.com/shibayu36/personachat/config"
	"github.com/shibayu36/personachat/memory"
)

// ErrBackend matches every error returned by a failed backend call.
var ErrBackend = errors.New("backend failure")

// ErrConsumed is yielded when a stream is ranged over a second time.
var ErrConsumed = errors.New("stream already consumed")

// BackendError wraps a network or API error from the completion endpoint.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// Params are the generation parameters of one completion call.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client wraps a go-openai client configured from the settings file.
type Client struct {
	api          *openai.Client
	defaultModel string
}

// NewClient builds a client for cfg's endpoint and credentials.
func NewClient(cfg config.Config) *Client {
	return &Client{
		api:          openai.NewClientWithConfig(clientConfig(cfg.APIKey, cfg.BaseURL)),
		defaultModel: cfg.Model,
	}
}

func clientConfig(apiKey, baseURL string) openai.ClientConfig {
	c := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		c.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// Stream requests a streaming completion. The returned sequence yields one
// fragment per non-empty chunk and can be ranged over once; the connection
// is closed when the sequence ends or the consumer stops early.
func (c *Client) Stream(ctx context.Context, messages []memory.Message, p Params) iter.Seq2[string, error] {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrConsumed)
			return
		}

		req := c.request(messages, p)
		req.Stream = true

		stream, err := c.api.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", &BackendError{Op: "stream completion", Err: err})
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", &BackendError{Op: "read stream", Err: err})
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(resp.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}
}

// Complete requests a whole completion in one response.
func (c *Client) Complete(ctx context.Context, messages []memory.Message, p Params) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, c.request(messages, p))
	if err != nil {
		return "", &BackendError{Op: "completion", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &BackendError{Op: "completion", Err: errors.New("no choices in response")}
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) request(messages []memory.Message, p Params) openai.ChatCompletionRequest {
	model := p.Model
	if model == "" {
		model = c.defaultModel
	}
	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertToOpenAIMessages(messages),
		Temperature: float32(p.Temperature),
		MaxTokens:   p.MaxTokens,
	}
}

// convertToOpenAIMessages converts stored turns to the request format
func convertToOpenAIMessages(messages []memory.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}

// ListModels returns the sorted model ids offered by an endpoint.
func ListModels(ctx context.Context, apiKey, baseURL string) ([]string, error) {
	api := openai.NewClientWithConfig(clientConfig(apiKey, baseURL))
	list, err := api.ListModels(ctx)
	if err != nil {
		return nil, &BackendError{Op: "list models", Err: err}
	}

	seen := make(map[string]bool, len(list.Models))
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}
