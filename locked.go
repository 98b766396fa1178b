package flashconfig

import "sync"

// Locked wraps an Engine with a single mutex, the way bsm/rumcask's DB
// guards its page map and current-page pointer with cLock/pLock. A bare
// Engine does no locking of its own: AddConfig/SetConfig/Commit/ReadAll
// all mutate shared state (the cache, the dirty map, the append cursor)
// without synchronization, so concurrent callers must either serialize
// themselves or go through a Locked.
type Locked struct {
	mu     sync.Mutex
	engine *Engine
}

// NewLocked wraps an already-Init'd Engine.
func NewLocked(engine *Engine) *Locked {
	return &Locked{engine: engine}
}

func (l *Locked) AddConfig(data []byte) uint16 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.AddConfig(data)
}

func (l *Locked) SetConfig(id uint16, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.engine.SetConfig(id, data)
}

// GetConfig returns a copy of the item's value. Unlike Engine.GetConfig
// it cannot safely hand back the cache's own backing array, since
// another goroutine could mutate it the instant the lock is released.
func (l *Locked) GetConfig(id uint16) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := l.engine.GetConfig(id)
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (l *Locked) Commit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.engine.Commit()
}

func (l *Locked) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.engine.Clear()
}

func (l *Locked) MakeAllDirty() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.engine.MakeAllDirty()
}

func (l *Locked) ReadAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.engine.ReadAll()
}
