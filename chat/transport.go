package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	jperrors "github.com/JohnPlummer/jp-go-errors"

	resilience "github.com/JohnPlummer/jobpilot/resilience"
)

const maxBodyPreview = 500

// httpTransport performs one completion exchange. It tags every error with the
// kind it detected so the executor never has to guess.
type httpTransport struct {
	cfg      Config
	client   *http.Client
	logger   *slog.Logger
	location *time.Location
}

var _ resilience.ResilientClient[ChatRequest, *ChatResponse] = (*httpTransport)(nil)

// Execute implements resilience.ResilientClient.
func (t *httpTransport) Execute(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, resilience.Tag(resilience.KindOther, "encode chat request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, resilience.Tag(resilience.KindOther, "build chat request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	t.logger.Debug("sending chat request",
		"url", t.cfg.Endpoint(),
		"api_key", t.cfg.maskedKey(),
		"model", req.Model,
		"request_size", len(payload))

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, transportError("send chat request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError("read chat response", err)
	}

	if resp.StatusCode != http.StatusOK {
		preview := truncate(string(body), maxBodyPreview)
		t.logger.Error("chat request failed",
			"status_code", resp.StatusCode,
			"body", preview)
		return nil, statusError(resp.StatusCode, preview)
	}

	t.logger.Debug("chat response received", "body", string(body))

	parsed, err := parseResponse(body, t.location)
	if err != nil {
		t.logger.Error("failed to parse chat response", "error", err)
		return nil, resilience.Tag(resilience.KindOther, "parse chat response", err)
	}
	return parsed, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// transportError tags an HTTP client error. Cancellation stays untagged.
func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resilience.Classify(err) == resilience.KindTimeout {
		return resilience.Tag(resilience.KindTimeout, op, err)
	}
	return resilience.Tag(resilience.KindNetwork, op, err)
}

// statusError builds a retryable Other failure for a non-200 status.
func statusError(code int, body string) error {
	cause := fmt.Errorf("chat completion returned status %d: %s", code, body)
	if code == http.StatusTooManyRequests {
		cause = fmt.Errorf("%w: %w", jperrors.ErrRateLimited, cause)
	}
	return resilience.Tag(resilience.KindOther, "chat completion",
		resilience.NewStatusCodeError(code, cause))
}
