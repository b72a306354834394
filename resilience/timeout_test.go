package resilience_test

import (
	"context"
	"errors"
	"time"

	jperrors "github.com/JohnPlummer/jp-go-errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	resilience "github.com/JohnPlummer/jobpilot/resilience"
)

var _ = Describe("CallWithTimeout", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("returns the value when the operation finishes in time", func() {
		outcome := resilience.CallWithTimeout(ctx, time.Second, func(ctx context.Context) (string, error) {
			return "done", nil
		})

		Expect(outcome.OK()).To(BeTrue())
		Expect(outcome.Value()).To(Equal("done"))
	})

	It("returns the operation's error classified", func() {
		outcome := resilience.CallWithTimeout(ctx, time.Second, func(ctx context.Context) (string, error) {
			return "", errors.New("element not found")
		})

		Expect(outcome.Failure().Kind).To(Equal(resilience.KindOther))
		Expect(outcome.Failure().Message).To(Equal("element not found"))
	})

	It("returns a timeout without waiting for a stuck operation", func() {
		released := make(chan struct{})
		start := time.Now()

		outcome := resilience.CallWithTimeout(ctx, 30*time.Millisecond, func(ctx context.Context) (string, error) {
			defer close(released)
			<-ctx.Done()
			// Ignore the cancellation for a while to simulate a slow worker
			time.Sleep(50 * time.Millisecond)
			return "late", nil
		})

		Expect(time.Since(start)).To(BeNumerically("<", time.Second))
		Expect(outcome.OK()).To(BeFalse())
		Expect(outcome.Failure().Kind).To(Equal(resilience.KindTimeout))
		Expect(jperrors.IsTimeout(outcome.Failure())).To(BeTrue())

		// The worker is not leaked once it observes the cancellation
		Eventually(released).Should(BeClosed())
	})

	It("returns while a worker that ignores its context keeps running", func() {
		release := make(chan struct{})
		finished := make(chan struct{})

		outcome := resilience.CallWithTimeout(ctx, 20*time.Millisecond, func(ctx context.Context) (string, error) {
			defer close(finished)
			<-release
			return "late", nil
		})

		Expect(outcome.Failure().Kind).To(Equal(resilience.KindTimeout))
		Consistently(finished, 50*time.Millisecond).ShouldNot(BeClosed())

		close(release)
		Eventually(finished).Should(BeClosed())
	})

	It("reports parent cancellation as cancellation, not timeout", func() {
		parent, cancel := context.WithCancel(ctx)
		time.AfterFunc(10*time.Millisecond, cancel)

		outcome := resilience.CallWithTimeout(parent, time.Minute, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})

		Expect(outcome.OK()).To(BeFalse())
		Expect(errors.Is(outcome.Failure(), context.Canceled)).To(BeTrue())
		Expect(outcome.Failure().Kind).To(Equal(resilience.KindOther))
	})

	It("recovers a panicking operation", func() {
		outcome := resilience.CallWithTimeout(ctx, time.Second, func(ctx context.Context) (int, error) {
			panic("driver crashed")
		})

		Expect(outcome.Failure().Kind).To(Equal(resilience.KindOther))
		Expect(outcome.Failure().Message).To(ContainSubstring("driver crashed"))
	})

	It("applies only the parent deadline when timeout is not positive", func() {
		outcome := resilience.CallWithTimeout(ctx, 0, func(ctx context.Context) (string, error) {
			_, hasDeadline := ctx.Deadline()
			Expect(hasDeadline).To(BeFalse())
			return "ok", nil
		})

		Expect(outcome.Value()).To(Equal("ok"))
	})
})
