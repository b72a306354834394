package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedResponse is returned when a 200 response does not have the expected shape.
var ErrMalformedResponse = errors.New("malformed chat completion response")

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body sent to the completions endpoint.
type ChatRequest struct {
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	Messages    []Message `json:"messages"`
}

// Usage holds token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is a parsed completion.
type ChatResponse struct {
	RequestID string
	CreatedAt time.Time
	Model     string
	Content   string
	Usage     Usage
}

// Wire types use pointers so that absent fields can be told apart from zero values.
type wireResponse struct {
	ID      *string      `json:"id"`
	Created *int64       `json:"created"`
	Model   *string      `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage"`
}

type wireChoice struct {
	Message *wireMessage `json:"message"`
}

type wireMessage struct {
	Content *string `json:"content"`
}

type wireUsage struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	TotalTokens      *int `json:"total_tokens"`
}

// newRequest builds the single-message request sent for content.
func newRequest(model, content string) ChatRequest {
	return ChatRequest{
		Model:       model,
		Temperature: DefaultTemperature,
		Messages:    []Message{{Role: "user", Content: content}},
	}
}

// parseResponse decodes body, rejecting any deviation from the expected shape.
// created is converted from epoch seconds into loc.
func parseResponse(body []byte, loc *time.Location) (*ChatResponse, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	var missing []string
	if wire.ID == nil {
		missing = append(missing, "id")
	}
	if wire.Created == nil {
		missing = append(missing, "created")
	}
	if wire.Model == nil {
		missing = append(missing, "model")
	}
	if len(wire.Choices) == 0 || wire.Choices[0].Message == nil || wire.Choices[0].Message.Content == nil {
		missing = append(missing, "choices[0].message.content")
	}
	if wire.Usage == nil {
		missing = append(missing, "usage")
	} else {
		if wire.Usage.PromptTokens == nil {
			missing = append(missing, "usage.prompt_tokens")
		}
		if wire.Usage.CompletionTokens == nil {
			missing = append(missing, "usage.completion_tokens")
		}
		if wire.Usage.TotalTokens == nil {
			missing = append(missing, "usage.total_tokens")
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %v", ErrMalformedResponse, missing)
	}

	if loc == nil {
		loc = time.Local
	}

	return &ChatResponse{
		RequestID: *wire.ID,
		CreatedAt: time.Unix(*wire.Created, 0).In(loc),
		Model:     *wire.Model,
		Content:   *wire.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     *wire.Usage.PromptTokens,
			CompletionTokens: *wire.Usage.CompletionTokens,
			TotalTokens:      *wire.Usage.TotalTokens,
		},
	}, nil
}
