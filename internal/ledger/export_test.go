package ledger

import "time"

// Overwrite edits a stored block in place, bypassing every append check.
// Tests use it to simulate tampering with the backing storage.
func (s *MemoryStore) Overwrite(index int, edit func(b *Block)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	edit(&s.blocks[index])
}

// SetClock replaces the ledger clock and returns a function restoring it.
func SetClock(fn func() time.Time) (restore func()) {
	prev := now
	now = fn
	return func() { now = prev }
}
