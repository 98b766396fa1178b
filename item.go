package flashconfig

// configItem is one cache entry. A value of at most the engine's
// InlineThreshold bytes is kept in the fixed inline array instead of a
// separately-allocated slice; NewEngine rejects a threshold larger than
// that array. The array corresponds to the original's tValueBufferSize
// template parameter.
type configItem struct {
	pageIndex  uint32 // relative to the start of the copy this item was read from
	dataOffset uint16 // offset of the first data byte within pageIndex
	count      uint16

	inline   [8]byte // used when count <= inline capacity configured on the engine
	heap     []byte  // used otherwise; exclusively owned, allocated once in init
	assigned bool
}

// init is one-shot: it only has an effect the first time it is called on
// a given item, mirroring the original ConfigItem::init guard against
// re-initializing a slot that is already in use.
func (it *configItem) init(page uint32, dataOffset, count uint16, inlineThreshold uint16) {
	if it.assigned {
		return
	}
	it.pageIndex = page
	it.dataOffset = dataOffset
	it.count = count
	it.assigned = true
	if count > inlineThreshold {
		it.heap = make([]byte, count)
	}
}

func (it *configItem) buffer() []byte {
	if it.heap != nil {
		return it.heap
	}
	return it.inline[:it.count]
}

// data returns a view of the item's current value, exactly count bytes.
func (it *configItem) data() []byte {
	return it.buffer()
}

// matches reports whether src[0:count] is byte-identical to the item's
// current value. If src is shorter than the cached count - a corrupted
// page whose item claims fewer bytes than the cache expects, but still
// passed its checksum - the compare stops at len(src) rather than
// reading past it, so a mismatch is reported instead of a panic.
func (it *configItem) matches(src []byte) bool {
	dst := it.buffer()
	n := min(len(dst), len(src))
	if n != len(dst) {
		return false
	}
	for i := 0; i < n; i++ {
		if dst[i] != src[i] {
			return false
		}
	}
	return true
}

// setData overwrites the item's value in place. The byte count never
// changes after init, so this never reallocates.
func (it *configItem) setData(src []byte) {
	copy(it.buffer(), src[:it.count])
}
