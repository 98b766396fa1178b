package flashconfig

import "github.com/rs/zerolog"

// Flash abstracts the underlying device: a fixed page size P, a fixed
// sector size S (pages per sector) and a total capacity of N pages.
// Pages read after an erase are all-0xFF; writes may only clear bits
// (1->0) until the next erase. Implementations are external
// collaborators - see package simflash for an in-memory one used by
// tests and the demo CLI.
type Flash interface {
	PageSizeBytes() uint32
	SectorSizePages() uint32
	FlashSizePages() uint32

	// ReadPages fills buf (which must be count*PageSizeBytes() long)
	// starting at the given absolute page.
	ReadPages(startPage, count uint32, buf []byte) error
	// WritePage programs exactly PageSizeBytes() bytes at the given
	// absolute page. Only 1->0 bit transitions are guaranteed to take
	// effect; callers must erase first if any bit needs to go 0->1.
	WritePage(page uint32, buf []byte) error
	// EraseSector resets every byte of the given absolute sector to 0xFF.
	EraseSector(sector uint32) error
}

// Hooks lets a host observe conditions the engine itself cannot recover
// from. FatalError is invoked synchronously from the call that detected
// the condition; the engine's own state is left in the defined state
// documented per error kind and the call returns normally to its caller.
// BadAlloc is retained for fidelity with the original interface contract,
// even though a Go make() failure is an unrecoverable runtime panic, not
// something Hooks can intercept - it only fires for a configuration that
// is rejected up front (zero-sized cache or dirty map).
type Hooks struct {
	FatalError func(ErrorKind)
	BadAlloc   func()
}

func (h Hooks) fatal(kind ErrorKind) {
	if h.FatalError != nil {
		h.FatalError(kind)
	}
}

func (h Hooks) badAlloc() {
	if h.BadAlloc != nil {
		h.BadAlloc()
	}
}

// NewZerologHooks builds Hooks that log every fatal condition and bad
// allocation through logger at error level, then return normally -
// matching the original interface's "fatalError reports, it does not
// have to halt" contract.
func NewZerologHooks(logger zerolog.Logger) Hooks {
	return Hooks{
		FatalError: func(kind ErrorKind) {
			logger.Error().Stringer("kind", kind).Msg("flashconfig: fatal condition")
		},
		BadAlloc: func() {
			logger.Error().Msg("flashconfig: allocation rejected")
		},
	}
}
