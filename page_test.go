package flashconfig

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("pageView", func() {
	var subject pageView

	BeforeEach(func() {
		subject = make(pageView, 32)
	})

	It("should read and write the magic byte", func() {
		Expect(subject.magic()).To(Equal(magicConfig))
		subject.setMagic(magicErased)
		Expect(subject.magic()).To(Equal(magicErased))
	})

	It("should read and write the item count", func() {
		subject.setItemCount(7)
		Expect(subject.itemCount()).To(Equal(uint16(7)))
	})

	It("should read and write the checksum field", func() {
		subject.setChecksumField(0xBEEF)
		Expect(subject.checksumField()).To(Equal(uint16(0xBEEF)))
	})

	It("should report uniformly erased pages", func() {
		Expect(subject.isUniformlyErased()).To(BeFalse())

		for i := range subject {
			subject[i] = magicErased
		}
		Expect(subject.isUniformlyErased()).To(BeTrue())

		subject[17] = 0x00
		Expect(subject.isUniformlyErased()).To(BeFalse())
	})
})

var _ = Describe("itemCursor", func() {

	It("should walk items in order", func() {
		page := make(pageView, 32)
		page.setItemCount(2)
		o := writeItemHeader(page, offsetPageItems, 0, 3)
		copy(page[o:], []byte{1, 2, 3})
		o = writeItemHeader(page, o+3, 1, 2)
		copy(page[o:], []byte{9, 9})

		cur := newItemCursor(page)
		Expect(cur.next()).To(BeTrue())
		Expect(cur.item).To(Equal(pageItem{id: 0, count: 3, dataOffset: offsetPageItems + offsetItemData}))
		Expect(cur.next()).To(BeTrue())
		Expect(cur.item.id).To(Equal(uint16(1)))
		Expect(cur.item.count).To(Equal(uint16(2)))
		Expect(cur.next()).To(BeFalse())
		Expect(cur.overrun).To(BeFalse())
	})

	It("should flag a header that would run past the page", func() {
		page := make(pageView, 16)
		page.setItemCount(2)
		// the first item's data ends at 13, leaving 3 bytes: too few for
		// the second item's 4-byte header
		writeItemHeader(page, offsetPageItems, 0, 4)

		cur := newItemCursor(page)
		Expect(cur.next()).To(BeTrue())
		Expect(cur.next()).To(BeFalse())
		Expect(cur.overrun).To(BeTrue())
	})

	It("should flag data that would run past the page", func() {
		page := make(pageView, 16)
		page.setItemCount(1)
		writeItemHeader(page, offsetPageItems, 0, 100)

		cur := newItemCursor(page)
		Expect(cur.next()).To(BeFalse())
		Expect(cur.overrun).To(BeTrue())
	})

	It("should stop cleanly when item count is zero", func() {
		page := make(pageView, 16)
		cur := newItemCursor(page)
		Expect(cur.next()).To(BeFalse())
		Expect(cur.overrun).To(BeFalse())
	})
})
