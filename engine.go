package flashconfig

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// readResult is the outcome of checking a single page against an
// expected task. It is an internal detail of the read/verify pipeline,
// not part of the public API.
type readResult uint8

const (
	readOk readResult = iota
	readErrorChecksum
	readErrorConsistency
	readErrorMismatch
	readErased
	readTransferError
)

// task selects what processPage should do with a page once it has
// validated the page's shape.
type task uint8

const (
	// taskCopy populates the cache from a page, advancing nextID and the
	// append cursor. Used for the copy that is treated as authoritative.
	taskCopy task = iota
	// taskCheck compares a page's items against the already-populated
	// cache, without advancing any cursor.
	taskCheck
	// taskCheckFf is like taskCheck but additionally requires an erased
	// page to be uniformly 0xFF, used by the commit planner to decide
	// whether a sector can be programmed in place.
	taskCheckFf
)

// EngineOptions configures a Engine. PagesNeeded, Copies and
// ReadAheadPages must agree with each other and with the Flash's sector
// size the way §3's "Derived constants" requires; NewEngine validates
// this up front rather than deferring to a static assertion.
type EngineOptions struct {
	PagesNeeded     uint32
	Copies          Copies
	ReadAheadPages  uint32
	MaxItemCount    uint32
	InlineThreshold uint16
	Hooks           Hooks
	Logger          zerolog.Logger
}

// Engine is the configuration partition core: the in-RAM cache, the
// dirty-page map, the read-ahead buffer and the append cursor, together
// with the load/verify and commit protocols that reconcile them against
// a Flash. It is not safe for concurrent use; see Locked for a
// mutex-guarded wrapper.
type Engine struct {
	flash  Flash
	opts   EngineOptions
	logger zerolog.Logger

	pageSize   uint32
	sectorSize uint32 // in pages
	copyPages  uint32

	startPage uint32

	cache        []configItem
	dirtyPages   []bool
	readAheadBuf []byte

	firstUsablePage       uint32
	firstUsableByteIndex  uint16
	nextID                uint16
}

// NewEngine validates opts against flash and returns a ready-to-Init
// Engine. It does not touch flash or allocate the cache/dirty/read-ahead
// buffers yet; that happens in Init, mirroring the original's split
// between compile-time layout and run-time allocation.
func NewEngine(flash Flash, opts EngineOptions) (*Engine, error) {
	if opts.Copies != Copy1 && opts.Copies != Copy2 {
		return nil, fmt.Errorf("flashconfig: illegal copies value %d", opts.Copies)
	}
	if opts.ReadAheadPages <= 1 {
		return nil, fmt.Errorf("flashconfig: read-ahead buffer must hold more than one page")
	}
	pageSize := flash.PageSizeBytes()
	sectorSize := flash.SectorSizePages()
	if sectorSize == 0 || opts.ReadAheadPages%sectorSize != 0 {
		return nil, fmt.Errorf("flashconfig: read-ahead buffer must be a multiple of the sector size")
	}
	copiesCount := uint32(1)
	if opts.Copies == Copy2 {
		copiesCount = 2
	}
	copyPages := opts.PagesNeeded / copiesCount
	if copyPages%sectorSize != 0 {
		return nil, fmt.Errorf("flashconfig: copy size must be a multiple of the sector size")
	}
	if copyPages*copiesCount != opts.PagesNeeded {
		return nil, fmt.Errorf("flashconfig: sum of copies must equal the partition size")
	}
	if opts.MaxItemCount == 0 {
		opts.Hooks.badAlloc()
		return nil, fmt.Errorf("flashconfig: max item count must be positive")
	}
	if copyPages == 0 {
		opts.Hooks.badAlloc()
		return nil, fmt.Errorf("flashconfig: copy size must be positive")
	}
	if inlineSize := len(configItem{}.inline); int(opts.InlineThreshold) > inlineSize {
		return nil, fmt.Errorf("flashconfig: inline threshold must not exceed %d bytes", inlineSize)
	}

	return &Engine{
		flash:      flash,
		opts:       opts,
		logger:     opts.Logger,
		pageSize:   pageSize,
		sectorSize: sectorSize,
		copyPages:  copyPages,
	}, nil
}

// Init allocates the cache, dirty-page map and read-ahead buffer, sets
// the partition's base page within flash, and loads the current state
// by calling ReadAll.
func (e *Engine) Init(basePage uint32) {
	e.startPage = basePage
	e.cache = make([]configItem, e.opts.MaxItemCount)
	e.dirtyPages = make([]bool, e.copyPages)
	e.readAheadBuf = make([]byte, e.opts.ReadAheadPages*e.pageSize)
	e.ReadAll()
}

// Done releases the buffers acquired by Init.
func (e *Engine) Done() {
	e.cache = nil
	e.dirtyPages = nil
	e.readAheadBuf = nil
}

// PagesNeeded returns the total number of pages this engine occupies
// across all configured copies.
func (e *Engine) PagesNeeded() uint32 { return e.copyPages * e.copiesCount() }

func (e *Engine) copiesCount() uint32 {
	if e.opts.Copies == Copy2 {
		return 2
	}
	return 1
}

func (e *Engine) maxItemDataSize() uint16 {
	return uint16(e.pageSize) - offsetPageItems - offsetItemData
}

// GetConfig returns item id's current value, or nil if id has never
// been assigned by AddConfig.
func (e *Engine) GetConfig(id uint16) []byte {
	if id >= e.nextID {
		e.opts.Hooks.fatal(ErrConfigInvalidID)
		return nil
	}
	return e.cache[id].data()
}

// AddConfig assigns the next id to data and marks its page dirty. It
// returns the sentinel id 0xFFFF, without touching the cache, if data is
// too large, if the id space is exhausted, or if the partition is full.
func (e *Engine) AddConfig(data []byte) uint16 {
	if uint16(len(data)) > e.maxItemDataSize() {
		e.opts.Hooks.fatal(ErrConfigItemTooBig)
		return unusedID
	}
	if e.nextID >= unusedID {
		e.opts.Hooks.fatal(ErrConfigInvalidID)
		return unusedID
	}

	id := e.nextID
	e.nextID++

	leftover := uint16(e.pageSize) - e.firstUsableByteIndex
	if leftover < uint16(len(data)) {
		e.firstUsablePage++
		e.firstUsableByteIndex = offsetPageItems
	}
	if e.firstUsablePage >= e.copyPages {
		e.opts.Hooks.fatal(ErrConfigFull)
		return unusedID
	}

	item := &e.cache[id]
	item.init(e.firstUsablePage, e.firstUsableByteIndex+offsetItemData, uint16(len(data)), e.opts.InlineThreshold)
	e.firstUsableByteIndex += offsetItemData + uint16(len(data))
	e.dirtyPages[item.pageIndex] = true
	item.setData(data)
	return id
}

// SetConfig overwrites item id's value. If the new bytes are identical
// to the current ones the call is a no-op and no page is marked dirty.
func (e *Engine) SetConfig(id uint16, data []byte) {
	if id >= e.nextID {
		e.opts.Hooks.fatal(ErrConfigInvalidID)
		return
	}
	item := &e.cache[id]
	if !item.matches(data) {
		e.dirtyPages[item.pageIndex] = true
		item.setData(data)
	}
}

// Clear resets nextID to zero and clears every dirty flag. Cache entries
// are left in place - their byte counts never change - and flash is
// untouched.
func (e *Engine) Clear() {
	e.nextID = 0
	e.makeAllClean()
}

// MakeAllDirty makes the next Commit re-check every page of every
// configured copy against the cache. Sectors whose pages already match
// the cache are still skipped; only sectors that differ are rewritten.
func (e *Engine) MakeAllDirty() {
	for i := range e.dirtyPages {
		e.dirtyPages[i] = true
	}
}

func (e *Engine) makeAllClean() {
	for i := range e.dirtyPages {
		e.dirtyPages[i] = false
	}
}

// ReadAll reloads the engine's state from flash, following the
// dual-copy reconciliation matrix in §4.3. It is called once by Init and
// may be called again by a caller that wants to discard uncommitted RAM
// changes and reload.
func (e *Engine) ReadAll() {
	e.Clear()
	result1 := e.readCopy(0, taskCopy)
	firstUsablePage1, firstUsableByteIndex1 := e.firstUsablePage, e.firstUsableByteIndex

	if e.opts.Copies == Copy2 {
		var result2 readResult
		if result1 != readOk {
			e.Clear()
			result2 = e.readCopy(e.copyPages, taskCopy)
		} else {
			result2 = e.readCopy(e.copyPages, taskCheck)
		}

		switch {
		case result1 == readOk && result2 == readOk:
			e.logger.Debug().Msg("flashconfig: read all: both copies ok")
		case result1 == readOk && result2 == readErrorMismatch:
			e.firstUsablePage = 0
			e.firstUsableByteIndex = offsetPageItems
			e.Clear()
			e.logger.Warn().Msg("flashconfig: read all: copies disagree with each other")
			e.opts.Hooks.fatal(ErrConfigCopiesMismatch)
		case result1 == readOk && result2 != readOk:
			e.firstUsablePage = firstUsablePage1
			e.firstUsableByteIndex = firstUsableByteIndex1
			e.logger.Warn().Msg("flashconfig: read all: copy 2 is unreadable or inconsistent, falling back to copy 1")
			e.opts.Hooks.fatal(ErrConfigBadCopy2)
		case result1 != readOk && result2 == readOk:
			e.logger.Warn().Msg("flashconfig: read all: copy 1 is unreadable or inconsistent, falling back to copy 2")
			e.opts.Hooks.fatal(ErrConfigBadCopy1)
		case result1 != readOk && result2 != readOk:
			e.firstUsablePage = 0
			e.firstUsableByteIndex = offsetPageItems
			e.Clear()
			e.logger.Error().Msg("flashconfig: read all: both copies are unreadable or inconsistent")
			e.opts.Hooks.fatal(ErrConfigBadCopies)
		}
	} else if result1 != readOk {
		e.firstUsablePage = 0
		e.firstUsableByteIndex = offsetPageItems
		e.Clear()
		e.logger.Error().Msg("flashconfig: read all: sole copy is unreadable or inconsistent")
		e.opts.Hooks.fatal(ErrConfigBadCopies)
	} else {
		e.logger.Debug().Msg("flashconfig: read all: sole copy ok")
	}
}

// readCopy streams one copy through the read-ahead buffer in chunks of
// up to ReadAheadPages pages, calling processPage on each. It stops at
// the first non-Ok, non-Erased page result; reaching a cleanly erased
// page (end of live data) is not an error.
func (e *Engine) readCopy(copyOffset uint32, t task) readResult {
	if t == taskCopy {
		e.firstUsablePage = 0
		e.firstUsableByteIndex = offsetPageItems
	}

	result := readOk
	var pagesRead uint32
	for result == readOk && pagesRead < e.copyPages {
		chunk := min(e.opts.ReadAheadPages, e.copyPages-pagesRead)
		if err := e.flash.ReadPages(e.startPage+copyOffset+pagesRead, chunk, e.readAheadBuf); err != nil {
			result = readTransferError
			break
		}
		for i := uint32(0); i < chunk && result == readOk; i++ {
			page := pageView(e.readAheadBuf[i*e.pageSize : (i+1)*e.pageSize])
			result = e.processPage(page, pagesRead+i, t)
		}
		pagesRead += chunk
	}

	if result == readErased {
		return readOk
	}
	return result
}

// processPage validates and, depending on t, either copies a page's
// items into the cache or checks them against it. See §4.3: a checksum
// mismatch, an inconsistent item count, or items out of order/overlapping
// the page boundary all yield ErrorConsistency/ErrorChecksum; a mismatch
// against the cache during a check yields ErrorMismatch, but a later
// item's match on the same page can overwrite that verdict back to Ok -
// the page-level result is whatever the last item left behind. During a
// check, a page that lacks cached items it should hold (an erased page
// where the cache still has items, or a page whose last item is followed
// by a cached item on the same page) yields ErrorConsistency.
func (e *Engine) processPage(page pageView, pageIndexRelCopy uint32, t task) readResult {
	if page.magic() == magicErased {
		if t == taskCheckFf {
			if page.isUniformlyErased() {
				return readErased
			}
			return readErrorConsistency
		}
		if t == taskCheck && e.nextID > 0 && e.cache[e.nextID-1].pageIndex >= pageIndexRelCopy {
			return readErrorConsistency
		}
		return readErased
	}
	if page.magic() != magicConfig {
		return readErrorConsistency
	}

	itemCount := page.itemCount()
	if checksum(page) != page.checksumField() {
		return readErrorChecksum
	}
	if itemCount == 0 || itemCount == unusedID {
		return readErrorConsistency
	}

	if t == taskCopy {
		e.firstUsablePage = pageIndexRelCopy
	}

	result := readOk
	var lastID uint16
	cur := newItemCursor(page)
	for cur.next() {
		it := cur.item
		lastID = it.id
		if it.dataEnd() > uint16(len(page)) || it.id > e.nextID {
			result = readErrorConsistency
			break
		}

		if it.id == e.nextID && t == taskCopy {
			e.cache[it.id].init(pageIndexRelCopy, it.dataOffset, it.count, e.opts.InlineThreshold)
			e.nextID++
		} else if it.id > e.nextID || e.cache[it.id].count != it.count {
			result = readErrorConsistency
		}

		item := &e.cache[it.id]
		raw := page[it.dataOffset:it.dataEnd()]
		if t == taskCopy {
			item.setData(raw)
		} else if item.matches(raw) {
			result = readOk
		} else {
			result = readErrorMismatch
		}

		if t == taskCopy {
			e.firstUsableByteIndex = it.dataEnd()
		}
	}
	if cur.overrun {
		result = readErrorConsistency
	}
	if t != taskCopy && result == readOk && lastID+1 < e.nextID && e.cache[lastID+1].pageIndex == pageIndexRelCopy {
		result = readErrorConsistency
	}
	return result
}

// Commit writes copy A, then copy B if configured and copy A succeeded.
// On success every dirty flag is cleared; on any I/O failure it reports
// ErrFlashTransferError and leaves the dirty map untouched so a retried
// Commit re-attempts exactly the pages that might still be stale.
func (e *Engine) Commit() {
	ok := e.commit(0)
	if ok && e.opts.Copies == Copy2 {
		ok = e.commit(e.copyPages)
	}
	if ok {
		e.makeAllClean()
	} else {
		e.opts.Hooks.fatal(ErrFlashTransferError)
	}
}

// commit reconciles one copy's dirty pages to flash, sector by sector,
// erasing only when a sector cannot be programmed in place. See §4.5.
func (e *Engine) commit(copyOffset uint32) bool {
	globalEnd := min(e.copyPages, e.firstUsablePage+1)
	pos := e.nextDirty(0, globalEnd)

	for pos < globalEnd {
		startSector := pos / e.sectorSize
		startPage := startSector * e.sectorSize
		endPage := min(globalEnd, startPage+e.opts.ReadAheadPages)
		pageCount := endPage - startPage
		sectorCount := (pageCount + e.sectorSize - 1) / e.sectorSize
		nextPos := e.nextDirty(endPage, globalEnd)

		if err := e.flash.ReadPages(e.startPage+copyOffset+startPage, pageCount, e.readAheadBuf); err != nil {
			return false
		}

		for s := uint32(0); s < sectorCount; s++ {
			allErased := true
			somethingChanged := false
			for p := uint32(0); p < e.sectorSize; p++ {
				pInBuf := p + s*e.sectorSize
				if pInBuf >= pageCount {
					break
				}
				page := pageView(e.readAheadBuf[pInBuf*e.pageSize : (pInBuf+1)*e.pageSize])
				res := e.processPage(page, startPage+pInBuf, taskCheckFf)
				if res != readOk {
					somethingChanged = true
				}
				if res != readErased {
					allErased = false
				}
			}
			sectorAbs := (e.startPage+copyOffset)/e.sectorSize + startSector + s
			if !somethingChanged {
				e.logger.Debug().Uint32("sector", sectorAbs).Msg("flashconfig: commit: sector skipped, already up to date")
				continue
			}

			if allErased {
				e.logger.Debug().Uint32("sector", sectorAbs).Msg("flashconfig: commit: sector programmed in place")
				if !e.programInPlace(copyOffset, startPage, s, pageCount) {
					return false
				}
			} else {
				e.logger.Debug().Uint32("sector", sectorAbs).Msg("flashconfig: commit: sector erased then reprogrammed")
				if err := e.flash.EraseSector(sectorAbs); err != nil {
					return false
				}
				if !e.programAfterErase(copyOffset, startPage, s, pageCount) {
					return false
				}
			}
		}
		pos = nextPos
	}
	return true
}

func (e *Engine) programInPlace(copyOffset, startPage, sectorInBuffer, pageCount uint32) bool {
	for p := uint32(0); p < e.sectorSize; p++ {
		pInBuf := p + sectorInBuffer*e.sectorSize
		if pInBuf >= pageCount {
			break
		}
		globalPage := startPage + pInBuf
		if !e.dirtyPages[globalPage] {
			continue
		}
		page := pageView(e.readAheadBuf[pInBuf*e.pageSize : (pInBuf+1)*e.pageSize])
		e.serialize(page, globalPage)
		if err := e.flash.WritePage(e.startPage+copyOffset+globalPage, page); err != nil {
			return false
		}
	}
	return true
}

func (e *Engine) programAfterErase(copyOffset, startPage, sectorInBuffer, pageCount uint32) bool {
	for p := uint32(0); p < e.sectorSize; p++ {
		pInBuf := p + sectorInBuffer*e.sectorSize
		if pInBuf >= pageCount {
			break
		}
		globalPage := startPage + pInBuf
		if globalPage < e.firstUsablePage || (globalPage == e.firstUsablePage && e.firstUsableByteIndex > offsetPageItems) {
			page := pageView(e.readAheadBuf[pInBuf*e.pageSize : (pInBuf+1)*e.pageSize])
			e.serialize(page, globalPage)
			if err := e.flash.WritePage(e.startPage+copyOffset+globalPage, page); err != nil {
				return false
			}
		}
	}
	return true
}

func (e *Engine) nextDirty(start, end uint32) uint32 {
	for i := start; i < end; i++ {
		if e.dirtyPages[i] {
			return i
		}
	}
	return end
}

// serialize writes targetPage's content into page in id order, starting
// from the first cache entry whose pageIndex is targetPage (found via
// binary search, since ids are assigned in page-ascending order), and
// continuing while the next item still fits. Trailing bytes are left as
// whatever garbage was already in the read-ahead buffer; that garbage is
// folded into the checksum but never interpreted.
func (e *Engine) serialize(page pageView, targetPage uint32) {
	cache := e.cache[:e.nextID]
	id := uint16(sort.Search(len(cache), func(i int) bool {
		return cache[i].pageIndex >= targetPage
	}))

	page.setMagic(magicConfig)
	var count uint16
	o := uint16(offsetPageItems)
	for id < e.nextID {
		item := &e.cache[id]
		limit := len(page) - offsetItemData - int(item.count)
		if int(o) > limit {
			break
		}
		dataOffset := writeItemHeader(page, o, id, item.count)
		copy(page[dataOffset:dataOffset+item.count], item.data())
		o = dataOffset + item.count
		count++
		id++
	}
	page.setItemCount(count)
	page.setChecksumField(checksum(page))
}
