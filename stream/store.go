package stream

import "sync"

// DefaultBlockCapacity is the retention cap used when none is configured.
const DefaultBlockCapacity = 100

// StoredBlock is a classified block plus the two UI-only flags owned by the
// store, never by the classifier.
type StoredBlock struct {
	Block
	Collapsed bool `json:"collapsed"`
	Pinned    bool `json:"pinned"`
}

// BlockStore owns the UI-facing block collection for one tab: collapse and
// pin flags, plus capacity-based eviction. Pinned blocks are exempt from
// eviction regardless of age.
type BlockStore struct {
	mu       sync.RWMutex
	capacity int
	order    []int64 // insertion order, oldest first
	blocks   map[int64]*StoredBlock
	// touched marks blocks whose collapsed flag the user has set explicitly;
	// the classifier's default-collapsed hint no longer applies to them.
	touched map[int64]bool
}

// NewBlockStore creates a store holding at most capacity unpinned blocks.
// A non-positive capacity falls back to DefaultBlockCapacity.
func NewBlockStore(capacity int) *BlockStore {
	if capacity <= 0 {
		capacity = DefaultBlockCapacity
	}
	return &BlockStore{
		capacity: capacity,
		blocks:   make(map[int64]*StoredBlock),
		touched:  make(map[int64]bool),
	}
}

// Apply routes a classifier event into the store.
func (s *BlockStore) Apply(ev BlockEvent) {
	s.Upsert(ev.Block)
}

// Upsert inserts a new block or merges an update into an existing one,
// preserving the collapsed/pinned flags of a block being updated. When a
// block closes with a default-collapsed hint and the user has not toggled it,
// the hint takes effect.
func (s *BlockStore) Upsert(b Block) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.blocks[b.ID]; ok {
		existing.Block = b
		if b.Complete && !s.touched[b.ID] {
			existing.Collapsed = b.CollapsedDefault
		}
		return
	}

	s.blocks[b.ID] = &StoredBlock{Block: b, Collapsed: b.CollapsedDefault}
	s.order = append(s.order, b.ID)
	s.evictLocked()
}

// evictLocked removes the oldest unpinned blocks until the collection fits
// the capacity. The newest entry is never evicted, pinned or not: it is the
// block the classifier is still writing to. If nothing else is evictable the
// collection may exceed capacity.
func (s *BlockStore) evictLocked() {
	for len(s.order) > s.capacity {
		evicted := false
		for i, id := range s.order[:len(s.order)-1] {
			if !s.blocks[id].Pinned {
				delete(s.blocks, id)
				delete(s.touched, id)
				s.order = append(s.order[:i], s.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}

// ToggleCollapsed flips the collapsed flag. Unknown ids are a no-op: the UI
// may reference blocks that were already evicted.
func (s *BlockStore) ToggleCollapsed(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.blocks[id]; ok {
		b.Collapsed = !b.Collapsed
		s.touched[id] = true
	}
}

// TogglePinned flips the pinned flag. Unknown ids are a no-op.
func (s *BlockStore) TogglePinned(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.blocks[id]; ok {
		b.Pinned = !b.Pinned
	}
}

// CollapseAll collapses every stored block, pinned or not.
func (s *BlockStore) CollapseAll() {
	s.setAllCollapsed(true)
}

// ExpandAll expands every stored block, pinned or not.
func (s *BlockStore) ExpandAll() {
	s.setAllCollapsed(false)
}

func (s *BlockStore) setAllCollapsed(collapsed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.blocks {
		b.Collapsed = collapsed
		s.touched[id] = true
	}
}

// Clear removes all unpinned blocks and retains pinned ones.
func (s *BlockStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	for _, id := range s.order {
		if s.blocks[id].Pinned {
			kept = append(kept, id)
			continue
		}
		delete(s.blocks, id)
		delete(s.touched, id)
	}
	s.order = kept
}

// Get returns a copy of the block with the given id.
func (s *BlockStore) Get(id int64) (StoredBlock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.blocks[id]; ok {
		return *b, true
	}
	return StoredBlock{}, false
}

// Len returns the number of stored blocks.
func (s *BlockStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Blocks returns a copy of all blocks in insertion order.
func (s *BlockStore) Blocks() []StoredBlock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StoredBlock, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.blocks[id])
	}
	return out
}

// Pinned returns the pinned blocks in insertion order. This is a pure filter
// over the collection, not separately stored state.
func (s *BlockStore) Pinned() []StoredBlock {
	return s.filter(func(b *StoredBlock) bool { return b.Pinned })
}

// Questions returns the question-type blocks in insertion order.
func (s *BlockStore) Questions() []StoredBlock {
	return s.filter(func(b *StoredBlock) bool { return b.Type == BlockQuestion })
}

func (s *BlockStore) filter(keep func(*StoredBlock) bool) []StoredBlock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []StoredBlock
	for _, id := range s.order {
		if keep(s.blocks[id]) {
			out = append(out, *s.blocks[id])
		}
	}
	return out
}
