// Package partition divides one Flash device among several independent
// plugins - typically flashconfig.Engine instances, one per logical
// configuration partition - each getting a disjoint, sector-aligned run
// of pages starting where the previous plugin's run ends.
package partition

import "fmt"

// Plugin is anything that can be handed a fixed, sector-aligned run of
// pages at partition time. *flashconfig.Engine implements this
// directly: PagesNeeded reports the size it was constructed with, Init
// receives the base page the Partitioner assigned it, and Done releases
// its buffers.
type Plugin interface {
	PagesNeeded() uint32
	Init(basePage uint32)
	Done()
}

// Geometry describes the Flash a Partitioner is laying plugins out on.
// It mirrors the handful of constants FlashPartitioner.h checks with
// static_assert before it will compile.
type Geometry struct {
	PageSizeBytes   uint32
	SectorSizePages uint32
	FlashSizePages  uint32
}

// Partitioner assigns each plugin a disjoint run of pages, in order,
// starting at page 0. Unlike the original's fixed two- or three-plugin
// template, it accepts any number of plugins.
type Partitioner struct {
	plugins []Plugin
}

// New validates geometry and the combined size of plugins against it,
// and returns a Partitioner ready to Init them.
func New(geometry Geometry, plugins ...Plugin) (*Partitioner, error) {
	if !isPowerOfTwo(geometry.FlashSizePages) {
		return nil, fmt.Errorf("partition: flash size must be a power of two, got %d", geometry.FlashSizePages)
	}
	if !isPowerOfTwo(geometry.PageSizeBytes) || geometry.PageSizeBytes < 256 || geometry.PageSizeBytes > 32768 {
		return nil, fmt.Errorf("partition: page size must be a power of two in [256, 32768], got %d", geometry.PageSizeBytes)
	}
	if !isPowerOfTwo(geometry.SectorSizePages) {
		return nil, fmt.Errorf("partition: sector size must be a power of two, got %d", geometry.SectorSizePages)
	}
	if geometry.FlashSizePages <= geometry.SectorSizePages {
		return nil, fmt.Errorf("partition: flash size must exceed sector size")
	}
	if uint64(geometry.PageSizeBytes)*uint64(geometry.FlashSizePages) > 1<<32 {
		return nil, fmt.Errorf("partition: flash byte size must not exceed 2^32, got %d pages of %d bytes", geometry.FlashSizePages, geometry.PageSizeBytes)
	}

	var total uint32
	for i, pl := range plugins {
		needed := pl.PagesNeeded()
		if needed%geometry.SectorSizePages != 0 {
			return nil, fmt.Errorf("partition: plugin %d needs %d pages, not a multiple of the sector size %d", i, needed, geometry.SectorSizePages)
		}
		total += needed
	}
	if total > geometry.FlashSizePages {
		return nil, fmt.Errorf("partition: plugins need %d pages, flash only has %d", total, geometry.FlashSizePages)
	}

	return &Partitioner{plugins: plugins}, nil
}

// Init assigns each plugin its base page, in the order passed to New,
// and calls its Init.
func (p *Partitioner) Init() {
	var base uint32
	for _, pl := range p.plugins {
		pl.Init(base)
		base += pl.PagesNeeded()
	}
}

// Done calls every plugin's Done, in the same order they were
// initialized.
func (p *Partitioner) Done() {
	for _, pl := range p.plugins {
		pl.Done()
	}
}

func isPowerOfTwo(n uint32) bool {
	return n > 0 && n&(n-1) == 0
}
