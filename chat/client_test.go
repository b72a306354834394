package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	jperrors "github.com/JohnPlummer/jp-go-errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/JohnPlummer/jobpilot/chat"
	resilience "github.com/JohnPlummer/jobpilot/resilience"
)

const validBody = `{
  "id": "chatcmpl-123",
  "created": 1700000000,
  "model": "gpt-test",
  "choices": [{"message": {"role": "assistant", "content": "true"}}],
  "usage": {"prompt_tokens": 12, "completion_tokens": 1, "total_tokens": 13}
}`

type usageSink struct {
	mu     sync.Mutex
	models []string
	usage  []chat.Usage
}

func (s *usageSink) RecordUsage(model string, usage chat.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = append(s.models, model)
	s.usage = append(s.usage, usage)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var _ = Describe("Client", func() {
	var (
		ctx       context.Context
		server    *httptest.Server
		calls     atomic.Int32
		mu        sync.Mutex
		responder func(w http.ResponseWriter, r *http.Request)
	)

	respondWith := func(fn func(w http.ResponseWriter, r *http.Request)) {
		mu.Lock()
		defer mu.Unlock()
		responder = fn
	}

	fastPolicy := resilience.NewRetryPolicy(3, time.Millisecond)

	newClient := func(opts ...chat.Option) *chat.Client {
		base := []chat.Option{
			chat.WithLogger(quietLogger()),
			chat.WithRetryPolicy(fastPolicy),
			chat.WithAttemptTimeout(2 * time.Second),
		}
		client, err := chat.NewClient(chat.Config{
			BaseURL: server.URL,
			APIKey:  "sk-test-key-123456",
			Model:   "gpt-test",
		}, append(base, opts...)...)
		Expect(err).NotTo(HaveOccurred())
		return client
	}

	BeforeEach(func() {
		ctx = context.Background()
		calls.Store(0)
		respondWith(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, validBody)
		})
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			mu.Lock()
			respond := responder
			mu.Unlock()
			respond(w, r)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("NewClient", func() {
		DescribeTable("rejects incomplete configuration",
			func(cfg chat.Config) {
				_, err := chat.NewClient(cfg)
				Expect(err).To(HaveOccurred())
			},
			Entry("missing base URL", chat.Config{APIKey: "k", Model: "m"}),
			Entry("relative base URL", chat.Config{BaseURL: "api.example.com", APIKey: "k", Model: "m"}),
			Entry("missing API key", chat.Config{BaseURL: "https://api.example.com", Model: "m"}),
			Entry("missing model", chat.Config{BaseURL: "https://api.example.com", APIKey: "k"}),
		)
	})

	Describe("SendChatRequest", func() {
		It("returns the message content verbatim", func() {
			client := newClient()
			Expect(client.SendChatRequest(ctx, "Is this job relevant?")).To(Equal("true"))
			Expect(calls.Load()).To(Equal(int32(1)))
		})

		It("sends the expected request", func() {
			type captured struct {
				method, path, auth, contentType string
				body                            chat.ChatRequest
			}
			seen := make(chan captured, 1)
			respondWith(func(w http.ResponseWriter, r *http.Request) {
				c := captured{
					method:      r.Method,
					path:        r.URL.Path,
					auth:        r.Header.Get("Authorization"),
					contentType: r.Header.Get("Content-Type"),
				}
				_ = json.NewDecoder(r.Body).Decode(&c.body)
				seen <- c
				_, _ = io.WriteString(w, validBody)
			})

			newClient().SendChatRequest(ctx, "hello")

			var c captured
			Eventually(seen).Should(Receive(&c))
			Expect(c.method).To(Equal(http.MethodPost))
			Expect(c.path).To(Equal(chat.CompletionsPath))
			Expect(c.auth).To(Equal("Bearer sk-test-key-123456"))
			Expect(c.contentType).To(Equal("application/json"))
			Expect(c.body.Model).To(Equal("gpt-test"))
			Expect(c.body.Temperature).To(Equal(chat.DefaultTemperature))
			Expect(c.body.Messages).To(Equal([]chat.Message{{Role: "user", Content: "hello"}}))
		})

		It("round-trips content with special characters", func() {
			content := "He said \"hi\"\nand left\t\\ ünïcødé <b>&</b>"
			received := make(chan string, 1)
			respondWith(func(w http.ResponseWriter, r *http.Request) {
				var req chat.ChatRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				if len(req.Messages) == 1 {
					received <- req.Messages[0].Content
				}
				_, _ = io.WriteString(w, validBody)
			})

			newClient().SendChatRequest(ctx, content)
			Eventually(received).Should(Receive(Equal(content)))
		})

		It("returns the fallback after three server errors", func() {
			respondWith(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"overloaded"}`, http.StatusInternalServerError)
			})

			Expect(newClient().SendChatRequest(ctx, "hello")).To(Equal(chat.Fallback))
			Expect(chat.Fallback).To(Equal("false"))
			Expect(calls.Load()).To(Equal(int32(3)))
		})

		It("retries a response missing usage and recovers", func() {
			respondWith(func(w http.ResponseWriter, r *http.Request) {
				if calls.Load() == 1 {
					_, _ = io.WriteString(w, `{"id":"x","created":1,"model":"m","choices":[{"message":{"content":"true"}}]}`)
					return
				}
				_, _ = io.WriteString(w, validBody)
			})

			Expect(newClient().SendChatRequest(ctx, "hello")).To(Equal("true"))
			Expect(calls.Load()).To(Equal(int32(2)))
		})

		It("recovers on a later attempt after a server error", func() {
			respondWith(func(w http.ResponseWriter, r *http.Request) {
				if calls.Load() < 3 {
					w.WriteHeader(http.StatusBadGateway)
					return
				}
				_, _ = io.WriteString(w, validBody)
			})

			Expect(newClient().SendChatRequest(ctx, "hello")).To(Equal("true"))
			Expect(calls.Load()).To(Equal(int32(3)))
		})
	})

	Describe("SendChatRequestOutcome", func() {
		It("exposes the parsed response", func() {
			sink := &usageSink{}
			client := newClient(chat.WithUsageRecorder(sink), chat.WithLocation(time.UTC))

			outcome := client.SendChatRequestOutcome(ctx, "hello")

			Expect(outcome.OK()).To(BeTrue())
			resp := outcome.Value()
			Expect(resp.RequestID).To(Equal("chatcmpl-123"))
			Expect(resp.Model).To(Equal("gpt-test"))
			Expect(resp.CreatedAt.Equal(time.Unix(1700000000, 0))).To(BeTrue())
			Expect(resp.CreatedAt.Location()).To(Equal(time.UTC))
			Expect(resp.Usage).To(Equal(chat.Usage{PromptTokens: 12, CompletionTokens: 1, TotalTokens: 13}))
			Expect(sink.models).To(Equal([]string{"gpt-test"}))
		})

		It("distinguishes a failed call from a negative answer", func() {
			respondWith(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"id":"x"}`)
			})

			outcome := newClient().SendChatRequestOutcome(ctx, "hello")

			Expect(outcome.OK()).To(BeFalse())
			f := outcome.Failure()
			Expect(f.Kind).To(Equal(resilience.KindOther))
			Expect(f.Exhausted).To(BeTrue())
			Expect(errors.Is(f, chat.ErrMalformedResponse)).To(BeTrue())
		})

		It("carries the status code of a non-200 response", func() {
			respondWith(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			})

			f := newClient().SendChatRequestOutcome(ctx, "hello").Failure()

			var httpErr resilience.HTTPError
			Expect(errors.As(f, &httpErr)).To(BeTrue())
			Expect(httpErr.StatusCode()).To(Equal(http.StatusTooManyRequests))
			Expect(errors.Is(f, jperrors.ErrRateLimited)).To(BeTrue())
			Expect(f.Kind).To(Equal(resilience.KindOther))
		})

		It("keeps multi-byte characters whole in the error body preview", func() {
			respondWith(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = io.WriteString(w, "x"+strings.Repeat("服务繁忙", 100))
			})

			f := newClient().SendChatRequestOutcome(ctx, "hello").Failure()

			msg := f.Err.Error()
			Expect(utf8.ValidString(msg)).To(BeTrue())
			Expect(msg).To(ContainSubstring("服务..."))
			Expect(msg).NotTo(ContainSubstring(strings.Repeat("服务繁忙", 100)))
		})

		It("tags an unreachable endpoint as a network failure", func() {
			client := newClient()
			server.Close()

			f := client.SendChatRequestOutcome(ctx, "hello").Failure()
			Expect(f).NotTo(BeNil())
			Expect(f.Kind).To(Equal(resilience.KindNetwork))
		})

		It("tags a slow endpoint as a timeout", func() {
			release := make(chan struct{})
			respondWith(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-release:
				case <-r.Context().Done():
				}
			})
			defer close(release)

			client := newClient(chat.WithAttemptTimeout(30*time.Millisecond), chat.WithRetryPolicy(resilience.RetryPolicy{MaxAttempts: 1}))
			f := client.SendChatRequestOutcome(ctx, "hello").Failure()

			Expect(f).NotTo(BeNil())
			Expect(f.Kind).To(Equal(resilience.KindTimeout))
		})
	})

	Describe("circuit breaker", func() {
		It("rejects calls without reaching the server once open", func() {
			respondWith(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			})
			client := newClient(chat.WithCircuitBreaker(
				resilience.WithConsecutiveFailures(3),
				resilience.WithOpenTimeout(time.Minute),
			))

			Expect(client.SendChatRequest(ctx, "first")).To(Equal(chat.Fallback))
			Expect(calls.Load()).To(Equal(int32(3)))

			outcome := client.SendChatRequestOutcome(ctx, "second")
			Expect(resilience.IsCircuitRejection(outcome.Failure())).To(BeTrue())
			Expect(calls.Load()).To(Equal(int32(3)))

			health, ok := client.Health()
			Expect(ok).To(BeTrue())
			Expect(health.Name).To(Equal("chat"))
			Expect(health.Healthy).To(BeFalse())
		})

		It("reports no health without a breaker", func() {
			_, ok := newClient().Health()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Stats", func() {
		It("counts attempts across calls", func() {
			client := newClient()
			client.SendChatRequest(ctx, "a")
			client.SendChatRequest(ctx, "b")

			stats := client.Stats()
			Expect(stats.TotalAttempts).To(Equal(int64(2)))
			Expect(stats.TotalSuccesses).To(Equal(int64(2)))
		})
	})
})
