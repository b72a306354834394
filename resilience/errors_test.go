package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	jperrors "github.com/JohnPlummer/jp-go-errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	resilience "github.com/JohnPlummer/jobpilot/resilience"
)

var _ = Describe("Error classification", func() {
	Describe("Classify", func() {
		DescribeTable("structural kinds",
			func(err error, expected resilience.ErrorKind) {
				Expect(resilience.Classify(err)).To(Equal(expected))
			},
			Entry("connection refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), resilience.KindNetwork),
			Entry("connection reset", &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}, resilience.KindNetwork),
			Entry("unknown host", &net.DNSError{Err: "no such host", Name: "api.invalid"}, resilience.KindNetwork),
			Entry("unexpected EOF", io.ErrUnexpectedEOF, resilience.KindNetwork),
			Entry("context deadline", context.DeadlineExceeded, resilience.KindTimeout),
			Entry("socket deadline", fmt.Errorf("read: %w", os.ErrDeadlineExceeded), resilience.KindTimeout),
			Entry("dns timeout", &net.DNSError{Err: "timeout", Name: "api.example", IsTimeout: true}, resilience.KindTimeout),
			Entry("jp-go-errors timeout", jperrors.NewTimeoutError("slow", "fetch", time.Second), resilience.KindTimeout),
			Entry("parse failure", errors.New("unexpected response shape"), resilience.KindOther),
			Entry("cancellation", context.Canceled, resilience.KindOther),
			Entry("nil", nil, resilience.KindOther),
		)

		It("trusts an explicit tag over structure", func() {
			err := resilience.Tag(resilience.KindOther, "decode", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF))
			Expect(resilience.Classify(err)).To(Equal(resilience.KindOther))

			err = resilience.Tag(resilience.KindNetwork, "send", errors.New("opaque transport failure"))
			Expect(resilience.Classify(err)).To(Equal(resilience.KindNetwork))
		})

		It("finds a tag through further wrapping", func() {
			err := fmt.Errorf("chat: %w", resilience.Tag(resilience.KindTimeout, "send", errors.New("slow")))
			Expect(resilience.Classify(err)).To(Equal(resilience.KindTimeout))
		})

		It("returns nil when tagging a nil error", func() {
			Expect(resilience.Tag(resilience.KindNetwork, "send", nil)).To(BeNil())
		})
	})

	Describe("KindClassifier", func() {
		It("retries every kind by default", func() {
			classifier := resilience.DefaultErrorClassifier()
			Expect(classifier.IsRetryable(errors.New("bad json"))).To(BeTrue())
			Expect(classifier.IsRetryable(syscall.ECONNREFUSED)).To(BeTrue())
			Expect(classifier.IsRetryable(context.DeadlineExceeded)).To(BeTrue())
		})

		It("never retries circuit rejections", func() {
			err := fmt.Errorf("%w: open", resilience.ErrCircuitRejected)
			Expect(resilience.DefaultErrorClassifier().IsRetryable(err)).To(BeFalse())
			Expect(resilience.TransientOnly().IsRetryable(err)).To(BeFalse())
		})

		It("restricts retries to transient kinds", func() {
			classifier := resilience.TransientOnly()
			Expect(classifier.IsRetryable(errors.New("bad json"))).To(BeFalse())
			Expect(classifier.IsRetryable(syscall.ECONNRESET)).To(BeTrue())
			Expect(classifier.IsRetryable(context.DeadlineExceeded)).To(BeTrue())
		})
	})

	Describe("HTTPStatusClassifier", func() {
		var classifier *resilience.HTTPStatusClassifier

		BeforeEach(func() {
			classifier = resilience.NewHTTPStatusClassifier()
		})

		DescribeTable("IsRetryable",
			func(code int, expected bool) {
				err := resilience.NewStatusCodeError(code, fmt.Errorf("status %d", code))
				Expect(classifier.IsRetryable(err)).To(Equal(expected))
			},
			Entry("429 Too Many Requests", 429, true),
			Entry("500 Internal Server Error", 500, true),
			Entry("502 Bad Gateway", 502, true),
			Entry("503 Service Unavailable", 503, true),
			Entry("504 Gateway Timeout", 504, true),
			Entry("400 Bad Request", 400, false),
			Entry("401 Unauthorized", 401, false),
			Entry("404 Not Found", 404, false),
		)

		DescribeTable("ShouldTripCircuit",
			func(code int, expected bool) {
				err := resilience.NewStatusCodeError(code, fmt.Errorf("status %d", code))
				Expect(classifier.ShouldTripCircuit(err)).To(Equal(expected))
			},
			Entry("401 Unauthorized", 401, true),
			Entry("403 Forbidden", 403, true),
			Entry("500 Internal Server Error", 500, true),
			Entry("503 Service Unavailable", 503, true),
			Entry("400 Bad Request", 400, false),
			Entry("404 Not Found", 404, false),
			Entry("429 Too Many Requests", 429, false),
		)

		It("retries errors that carry no status code", func() {
			Expect(classifier.IsRetryable(syscall.ECONNREFUSED)).To(BeTrue())
			Expect(classifier.IsRetryable(errors.New("bad json"))).To(BeTrue())
		})

		It("retries rate limits and never trips on them", func() {
			err := fmt.Errorf("chat: %w", jperrors.ErrRateLimited)
			Expect(classifier.IsRetryable(err)).To(BeTrue())
			Expect(classifier.ShouldTripCircuit(err)).To(BeFalse())
		})

		It("does not trip on timeouts or cancellation", func() {
			Expect(classifier.ShouldTripCircuit(context.DeadlineExceeded)).To(BeFalse())
			Expect(classifier.ShouldTripCircuit(context.Canceled)).To(BeFalse())
			Expect(classifier.IsRetryable(context.Canceled)).To(BeFalse())
		})

		It("trips on unknown errors", func() {
			Expect(classifier.ShouldTripCircuit(errors.New("unknown"))).To(BeTrue())
		})

		It("honours custom status lists", func() {
			custom := &resilience.HTTPStatusClassifier{RetryableStatuses: []int{418}}
			Expect(custom.IsRetryable(resilience.NewStatusCodeError(418, errors.New("teapot")))).To(BeTrue())
			Expect(custom.IsRetryable(resilience.NewStatusCodeError(500, errors.New("server")))).To(BeFalse())
		})
	})

	Describe("StatusCodeError", func() {
		It("exposes the status and unwraps the cause", func() {
			cause := errors.New("upstream failed")
			err := resilience.NewStatusCodeError(502, cause)

			var httpErr resilience.HTTPError
			Expect(errors.As(err, &httpErr)).To(BeTrue())
			Expect(httpErr.StatusCode()).To(Equal(502))
			Expect(errors.Is(err, cause)).To(BeTrue())
			Expect(err.Error()).To(Equal("upstream failed"))
		})
	})
})
