// Package simflash implements an in-memory stand-in for a NOR-flash
// device, playing the same role FlashInterface played for the original
// engine's own test harness: a flat byte array that tracks erased
// sectors, accepts only 1->0 bit transitions outside an erase, and logs
// every operation it performs.
package simflash

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

const erasedByte = 0xFF

// Device is a simulated flash chip of a fixed page size, sector size
// and total capacity. It is safe for concurrent use.
type Device struct {
	pageSize   uint32
	sectorSize uint32 // pages per sector
	flashSize  uint32 // total pages
	logger     zerolog.Logger

	mu   sync.Mutex
	data []byte

	reads, writes, erases uint64
}

// New creates a Device of the given geometry, freshly erased (every
// byte 0xFF).
func New(pageSizeBytes, sectorSizePages, flashSizePages uint32, logger zerolog.Logger) *Device {
	d := &Device{
		pageSize:   pageSizeBytes,
		sectorSize: sectorSizePages,
		flashSize:  flashSizePages,
		logger:     logger,
		data:       make([]byte, uint64(pageSizeBytes)*uint64(flashSizePages)),
	}
	for i := range d.data {
		d.data[i] = erasedByte
	}
	return d
}

func (d *Device) PageSizeBytes() uint32   { return d.pageSize }
func (d *Device) SectorSizePages() uint32 { return d.sectorSize }
func (d *Device) FlashSizePages() uint32  { return d.flashSize }

// Stats returns the number of ReadPages, WritePage and EraseSector calls
// served so far, in that order.
func (d *Device) Stats() (reads, writes, erases uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads, d.writes, d.erases
}

func (d *Device) ReadPages(startPage, count uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if startPage+count > d.flashSize {
		return fmt.Errorf("simflash: read out of range: page %d count %d", startPage, count)
	}
	off := uint64(startPage) * uint64(d.pageSize)
	n := uint64(count) * uint64(d.pageSize)
	copy(buf, d.data[off:off+n])
	d.reads++
	d.logger.Debug().Uint32("start_page", startPage).Uint32("count", count).Msg("simflash: read")
	return nil
}

// WritePage programs exactly one page. Any attempt to set a bit that is
// currently 0 back to 1 without an intervening EraseSector is rejected,
// the same constraint the original FlashCommon.h invariants describe
// for real NOR flash.
func (d *Device) WritePage(page uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if page >= d.flashSize {
		return fmt.Errorf("simflash: write out of range: page %d", page)
	}
	if uint32(len(buf)) != d.pageSize {
		return fmt.Errorf("simflash: write buffer has %d bytes, want %d", len(buf), d.pageSize)
	}
	off := uint64(page) * uint64(d.pageSize)
	dst := d.data[off : off+uint64(d.pageSize)]
	for i, b := range buf {
		if dst[i]&b != b {
			return fmt.Errorf("simflash: write at page %d byte %d would set a bit from 0 to 1 outside an erase", page, i)
		}
		dst[i] = b
	}
	d.writes++
	d.logger.Debug().Uint32("page", page).Msg("simflash: wrote page")
	return nil
}

func (d *Device) EraseSector(sector uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sectorCount := d.flashSize / d.sectorSize
	if sector >= sectorCount {
		return fmt.Errorf("simflash: erase out of range: sector %d", sector)
	}
	sectorBytes := uint64(d.sectorSize) * uint64(d.pageSize)
	off := uint64(sector) * sectorBytes
	for i := off; i < off+sectorBytes; i++ {
		d.data[i] = erasedByte
	}
	d.erases++
	d.logger.Debug().Uint32("sector", sector).Msg("simflash: erased sector")
	return nil
}

// Corrupt overwrites a single byte at an absolute page/offset, bypassing
// the 1->0-only write constraint. It exists for tests that need to
// inject a checksum failure or an inconsistent page without going
// through the normal commit protocol.
func (d *Device) Corrupt(page uint32, offset int, value byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	off := uint64(page)*uint64(d.pageSize) + uint64(offset)
	d.data[off] = value
}
