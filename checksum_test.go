package flashconfig

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("checksum", func() {

	It("should match a known page", func() {
		page := make([]byte, 32)
		page[offsetPageMagic] = magicConfig
		page[offsetPageCount] = 1
		// checksum slot left zero; it must not feed into the sum
		page[offsetPageItems+offsetItemCount] = 3 // count = 3
		page[offsetPageItems+offsetItemData] = 1
		page[offsetPageItems+offsetItemData+1] = 2
		page[offsetPageItems+offsetItemData+2] = 3

		Expect(checksum(page)).To(Equal(uint16(0x050A)))
	})

	It("should not trivially checksum to zero for an erased page", func() {
		page := make([]byte, 32)
		for i := range page {
			page[i] = magicErased
		}
		Expect(checksum(page)).To(Equal(uint16(47158)))
	})

	It("should not trivially checksum to zero for an all-zero page", func() {
		page := make([]byte, 32)
		Expect(checksum(page)).To(Equal(uint16(43596)))
	})

	It("should ignore the checksum slot itself", func() {
		a := make([]byte, 32)
		a[offsetPageChecksum] = 0x11
		a[offsetPageChecksum+1] = 0x22
		b := make([]byte, 32)
		b[offsetPageChecksum] = 0x33
		b[offsetPageChecksum+1] = 0x44
		Expect(checksum(a)).To(Equal(checksum(b)))
	})

	It("should change when any non-slot byte flips a bit", func() {
		page := make([]byte, 64)
		page[offsetPageMagic] = magicConfig
		page[offsetPageCount] = 2
		base := checksum(page)
		for k := range page {
			if k == offsetPageChecksum || k == offsetPageChecksum+1 {
				continue
			}
			flipped := make([]byte, len(page))
			copy(flipped, page)
			flipped[k] ^= 0x01
			Expect(checksum(flipped)).NotTo(Equal(base), "byte %d", k)
		}
	})

})
