package flashconfig

// pageView is a fixed-size window into the read-ahead buffer for exactly
// one page. Unlike bsm/rumcask's file-backed Page, a pageView never owns
// storage of its own - pages only exist transiently inside the engine's
// read-ahead buffer while they are being read, checked or rewritten.
type pageView []byte

func (p pageView) magic() byte { return p[offsetPageMagic] }

func (p pageView) setMagic(m byte) { p[offsetPageMagic] = m }

func (p pageView) itemCount() uint16 { return byteOrder.Uint16(p[offsetPageCount:]) }

func (p pageView) setItemCount(n uint16) { byteOrder.PutUint16(p[offsetPageCount:], n) }

func (p pageView) checksumField() uint16 { return byteOrder.Uint16(p[offsetPageChecksum:]) }

func (p pageView) setChecksumField(c uint16) { byteOrder.PutUint16(p[offsetPageChecksum:], c) }

// isUniformlyErased reports whether every byte of the page reads 0xFF,
// the only state a cleanly erased sector can be in.
func (p pageView) isUniformlyErased() bool {
	for _, b := range p {
		if b != magicErased {
			return false
		}
	}
	return true
}

// pageItem describes one item header found while walking a page.
type pageItem struct {
	id         uint16
	count      uint16
	dataOffset uint16
}

func (it pageItem) dataEnd() uint16 { return it.dataOffset + it.count }

// itemCursor walks the items of a config page in order, the way
// bsm/rumcask's pageIterator walks key/value records in a data page.
// Unlike that iterator it never skips entries (config items are never
// individually deleted) but it does detect a header that would run
// past the end of the page.
type itemCursor struct {
	page      pageView
	remaining uint16
	pos       uint16
	item      pageItem
	overrun   bool
}

func newItemCursor(page pageView) *itemCursor {
	return &itemCursor{page: page, remaining: page.itemCount(), pos: offsetPageItems}
}

// next advances to the next item, returning false when there are no more
// items or the current header would overrun the page (check overrun).
func (c *itemCursor) next() bool {
	if c.remaining == 0 || c.overrun {
		return false
	}
	if int(c.pos)+offsetItemData > len(c.page) {
		c.overrun = true
		return false
	}
	id := byteOrder.Uint16(c.page[c.pos+offsetItemID:])
	count := byteOrder.Uint16(c.page[c.pos+offsetItemCount:])
	dataOffset := c.pos + offsetItemData
	if int(dataOffset)+int(count) > len(c.page) {
		c.overrun = true
		return false
	}
	c.item = pageItem{id: id, count: count, dataOffset: dataOffset}
	c.pos = dataOffset + count
	c.remaining--
	return true
}

// writeItemHeader writes an item's (id, count) header at offset o and
// returns the offset its data starts at.
func writeItemHeader(page pageView, o uint16, id, count uint16) uint16 {
	byteOrder.PutUint16(page[o+offsetItemID:], id)
	byteOrder.PutUint16(page[o+offsetItemCount:], count)
	return o + offsetItemData
}
