package flashconfig

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("configItem", func() {
	var subject *configItem

	BeforeEach(func() {
		subject = &configItem{}
	})

	It("should keep small values inline", func() {
		subject.init(3, 9, 4, 8)
		subject.setData([]byte{1, 2, 3, 4})

		Expect(subject.heap).To(BeNil())
		Expect(subject.data()).To(Equal([]byte{1, 2, 3, 4}))
		Expect(subject.pageIndex).To(Equal(uint32(3)))
		Expect(subject.dataOffset).To(Equal(uint16(9)))
	})

	It("should spill large values to a separately-allocated slice", func() {
		big := make([]byte, 32)
		for i := range big {
			big[i] = byte(i)
		}
		subject.init(1, 5, 32, 8)
		subject.setData(big)

		Expect(subject.heap).NotTo(BeNil())
		Expect(subject.data()).To(Equal(big))
	})

	It("should ignore a second init call", func() {
		subject.init(1, 5, 4, 8)
		subject.init(9, 99, 40, 8)

		Expect(subject.pageIndex).To(Equal(uint32(1)))
		Expect(subject.count).To(Equal(uint16(4)))
	})

	It("should report matches", func() {
		subject.init(0, 5, 3, 8)
		subject.setData([]byte{9, 8, 7})

		Expect(subject.matches([]byte{9, 8, 7})).To(BeTrue())
		Expect(subject.matches([]byte{9, 8, 6})).To(BeFalse())
	})

})
