package flashconfig

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ErrorKind", func() {

	It("should describe known kinds", func() {
		Expect(ErrConfigFull.String()).To(Equal("config partition is full"))
		Expect(ErrConfigCopiesMismatch.String()).To(Equal("config copies disagree with each other"))
	})

	It("should fall back for unknown kinds", func() {
		Expect(ErrorKind(99).String()).To(Equal("unknown error kind (99)"))
	})

})

var _ = Describe("Status", func() {

	It("should describe known statuses", func() {
		Expect(StatusOk.String()).To(Equal("ok"))
		Expect(StatusBusy.String()).To(Equal("busy"))
	})

	It("should fall back for unknown statuses", func() {
		Expect(Status(99).String()).To(Equal("unknown status (99)"))
	})

})
