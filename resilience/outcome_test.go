package resilience_test

import (
	"errors"
	"fmt"
	"syscall"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	resilience "github.com/JohnPlummer/jobpilot/resilience"
)

var _ = Describe("Outcome", func() {
	It("holds exactly the success value", func() {
		o := resilience.Succeeded("page")
		Expect(o.OK()).To(BeTrue())
		Expect(o.Failure()).To(BeNil())

		value, err := o.Get()
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(Equal("page"))
		Expect(o.OrElse("fallback")).To(Equal("page"))
	})

	It("holds exactly the failure", func() {
		o := resilience.Failed[string](&resilience.Failure{Err: errors.New("boom"), Kind: resilience.KindOther, Attempt: 2})
		Expect(o.OK()).To(BeFalse())
		Expect(o.Value()).To(BeEmpty())
		Expect(o.OrElse("fallback")).To(Equal("fallback"))

		_, err := o.Get()
		var f *resilience.Failure
		Expect(errors.As(err, &f)).To(BeTrue())
		Expect(f.Attempt).To(Equal(2))
	})

	It("never produces an empty failed outcome", func() {
		o := resilience.Failed[int](nil)
		Expect(o.OK()).To(BeFalse())
		Expect(o.Failure()).NotTo(BeNil())
		Expect(o.Failure().Kind).To(Equal(resilience.KindOther))
	})

	Describe("Failure", func() {
		It("unwraps to the last error", func() {
			cause := fmt.Errorf("dial: %w", syscall.ECONNREFUSED)
			f := &resilience.Failure{Err: cause, Message: cause.Error(), Kind: resilience.KindNetwork, Attempt: 3, Exhausted: true}

			Expect(errors.Is(f, syscall.ECONNREFUSED)).To(BeTrue())
			Expect(f.Error()).To(ContainSubstring("network failure after 3 attempts"))
		})
	})

	Describe("Handle", func() {
		handlers := resilience.KindHandlers[string]{
			Network: func(f *resilience.Failure) string { return "network" },
			Timeout: func(f *resilience.Failure) string { return "timeout" },
			Other:   func(f *resilience.Failure) string { return "other" },
		}

		DescribeTable("dispatches by kind",
			func(kind resilience.ErrorKind, expected string) {
				o := resilience.Failed[string](&resilience.Failure{Kind: kind})
				Expect(resilience.Handle(o, handlers)).To(Equal(expected))
			},
			Entry("network", resilience.KindNetwork, "network"),
			Entry("timeout", resilience.KindTimeout, "timeout"),
			Entry("other", resilience.KindOther, "other"),
		)

		It("returns the value without calling any handler", func() {
			called := false
			h := resilience.KindHandlers[string]{Other: func(*resilience.Failure) string {
				called = true
				return ""
			}}
			Expect(resilience.Handle(resilience.Succeeded("ok"), h)).To(Equal("ok"))
			Expect(called).To(BeFalse())
		})

		It("falls back to Other for a missing kind handler", func() {
			h := resilience.KindHandlers[string]{Other: func(*resilience.Failure) string { return "other" }}
			o := resilience.Failed[string](&resilience.Failure{Kind: resilience.KindTimeout})
			Expect(resilience.Handle(o, h)).To(Equal("other"))
		})

		It("yields the zero value when no handler applies", func() {
			o := resilience.Failed[int](&resilience.Failure{Kind: resilience.KindNetwork})
			Expect(resilience.Handle(o, resilience.KindHandlers[int]{})).To(BeZero())
		})
	})

	DescribeTable("ErrorKind.String",
		func(kind resilience.ErrorKind, expected string) {
			Expect(kind.String()).To(Equal(expected))
		},
		Entry("network", resilience.KindNetwork, "network"),
		Entry("timeout", resilience.KindTimeout, "timeout"),
		Entry("other", resilience.KindOther, "other"),
		Entry("unknown", resilience.ErrorKind(99), "unknown"),
	)
})
