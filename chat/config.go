package chat

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Config is the session configuration for a chat endpoint.
// It is copied into the Client at construction and never mutated afterwards.
type Config struct {
	// BaseURL is the scheme and host of the API, without the completions path.
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Model is the model name sent with every request.
	Model string
}

// Validate reports every missing or malformed field.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.BaseURL) == "" {
		errs = append(errs, errors.New("base URL is required"))
	} else if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base URL %q is not an absolute URL", c.BaseURL))
	}
	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("API key is required"))
	}
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model is required"))
	}
	return errors.Join(errs...)
}

// Endpoint returns the completions URL.
func (c Config) Endpoint() string {
	return strings.TrimRight(c.BaseURL, "/") + CompletionsPath
}

// maskedKey returns the key with all but its edges hidden.
func (c Config) maskedKey() string {
	if len(c.APIKey) <= 8 {
		return "****"
	}
	return c.APIKey[:4] + "..." + c.APIKey[len(c.APIKey)-4:]
}
