package stream

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func storeBlock(id int64, typ BlockType) Block {
	return Block{
		ID:       id,
		Type:     typ,
		Content:  fmt.Sprintf("block %d", id),
		Complete: true,
	}
}

func fillStore(s *BlockStore, n int) {
	for i := 1; i <= n; i++ {
		s.Upsert(storeBlock(int64(i), BlockText))
	}
}

func TestStoreEvictsOldestUnpinned(t *testing.T) {
	s := NewBlockStore(3)
	fillStore(s, 4)

	require.Equal(t, 3, s.Len())
	_, ok := s.Get(1)
	require.False(t, ok, "oldest block should be evicted")

	blocks := s.Blocks()
	require.Equal(t, int64(2), blocks[0].ID)
	require.Equal(t, int64(4), blocks[2].ID)
}

func TestStorePinnedSurvivesEviction(t *testing.T) {
	s := NewBlockStore(3)
	fillStore(s, 3)
	s.TogglePinned(1)

	s.Upsert(storeBlock(4, BlockText))

	// The pinned oldest block stays; the next oldest goes instead.
	_, ok := s.Get(1)
	require.True(t, ok)
	_, ok = s.Get(2)
	require.False(t, ok)
	require.Equal(t, 3, s.Len())
}

func TestStoreAllPinnedExceedsCapacity(t *testing.T) {
	s := NewBlockStore(2)
	fillStore(s, 2)
	s.TogglePinned(1)
	s.TogglePinned(2)

	s.Upsert(storeBlock(3, BlockText))

	// Nothing evictable, so the store grows past capacity.
	require.Equal(t, 3, s.Len())
}

func TestStoreNewestSurvivesWhenOlderPinned(t *testing.T) {
	s := NewBlockStore(2)
	fillStore(s, 2)
	s.TogglePinned(1)
	s.TogglePinned(2)

	// Block 3 is still open and keeps receiving classifier updates. It must
	// stay in the store even though it is the only unpinned block.
	s.Upsert(Block{ID: 3, Type: BlockCode, Content: "x := 1"})
	s.Upsert(Block{ID: 3, Type: BlockCode, Content: "x := 1\ny := 2"})

	require.Equal(t, 3, s.Len())
	b, ok := s.Get(3)
	require.True(t, ok)
	require.Equal(t, "x := 1\ny := 2", b.Content)
}

func TestStoreUpsertPreservesFlags(t *testing.T) {
	s := NewBlockStore(10)
	s.Upsert(Block{ID: 1, Type: BlockCode, Content: "x := 1"})
	s.ToggleCollapsed(1)
	s.TogglePinned(1)

	s.Upsert(Block{ID: 1, Type: BlockCode, Content: "x := 1\ny := 2"})

	b, ok := s.Get(1)
	require.True(t, ok)
	require.True(t, b.Collapsed)
	require.True(t, b.Pinned)
	require.Equal(t, "x := 1\ny := 2", b.Content)
}

func TestStoreCollapsedDefaultAppliesAtClose(t *testing.T) {
	s := NewBlockStore(10)
	s.Upsert(Block{ID: 1, Type: BlockCode, Content: "short"})

	b, _ := s.Get(1)
	require.False(t, b.Collapsed)

	s.Upsert(Block{ID: 1, Type: BlockCode, Content: "long", Complete: true, CollapsedDefault: true})
	b, _ = s.Get(1)
	require.True(t, b.Collapsed, "default hint should apply when the block closes")
}

func TestStoreUserToggleBeatsDefault(t *testing.T) {
	s := NewBlockStore(10)
	s.Upsert(Block{ID: 1, Type: BlockCode, Content: "x"})
	// A toggle while streaming marks the block as user-controlled; the
	// choice sticks even when the closing block carries a collapsed hint.
	s.ToggleCollapsed(1)
	s.ToggleCollapsed(1)

	s.Upsert(Block{ID: 1, Type: BlockCode, Content: "x", Complete: true, CollapsedDefault: true})

	b, _ := s.Get(1)
	require.False(t, b.Collapsed)
}

func TestStoreToggleUnknownIDNoOp(t *testing.T) {
	s := NewBlockStore(10)
	fillStore(s, 2)

	s.ToggleCollapsed(99)
	s.TogglePinned(99)

	require.Equal(t, 2, s.Len())
	for _, b := range s.Blocks() {
		require.False(t, b.Collapsed)
		require.False(t, b.Pinned)
	}
}

func TestStoreCollapseExpandAll(t *testing.T) {
	s := NewBlockStore(10)
	fillStore(s, 4)
	s.TogglePinned(2)

	s.CollapseAll()
	for _, b := range s.Blocks() {
		require.True(t, b.Collapsed)
	}

	s.ExpandAll()
	for _, b := range s.Blocks() {
		require.False(t, b.Collapsed)
	}
}

func TestStoreClearKeepsPinned(t *testing.T) {
	s := NewBlockStore(10)
	fillStore(s, 5)
	s.TogglePinned(2)
	s.TogglePinned(4)

	s.Clear()

	require.Equal(t, 2, s.Len())
	blocks := s.Blocks()
	require.Equal(t, int64(2), blocks[0].ID)
	require.Equal(t, int64(4), blocks[1].ID)
}

func TestStoreFilters(t *testing.T) {
	s := NewBlockStore(10)
	s.Upsert(storeBlock(1, BlockText))
	s.Upsert(storeBlock(2, BlockQuestion))
	s.Upsert(storeBlock(3, BlockCode))
	s.Upsert(storeBlock(4, BlockQuestion))
	s.TogglePinned(3)

	questions := s.Questions()
	require.Len(t, questions, 2)
	require.Equal(t, int64(2), questions[0].ID)
	require.Equal(t, int64(4), questions[1].ID)

	pinned := s.Pinned()
	require.Len(t, pinned, 1)
	require.Equal(t, int64(3), pinned[0].ID)
}

func TestStoreDefaultCapacity(t *testing.T) {
	s := NewBlockStore(0)
	fillStore(s, DefaultBlockCapacity+5)
	require.Equal(t, DefaultBlockCapacity, s.Len())
}
