package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/benjarvis/peepfs/internal/archive"
	"github.com/benjarvis/peepfs/internal/cache"
)

func Test_Cache_GetInsert_RoundTrip_Success(t *testing.T) {
	t.Parallel()

	c := cache.New(1024, time.Minute)

	entry := archive.Entry{Index: 3, Size: 128}
	c.Insert("/data/a.zip", "dir/file.txt", 0, &entry)

	got, ok := c.Get("/data/a.zip", "dir/file.txt")
	require.True(t, ok)
	require.Equal(t, entry, got)
}

func Test_Cache_Get_Miss_ReturnsFalse(t *testing.T) {
	t.Parallel()

	c := cache.New(1024, time.Minute)

	_, ok := c.Get("/data/a.zip", "nope.txt")
	require.False(t, ok)
}

func Test_Cache_Insert_ReplacesExistingEntryAtSamePath(t *testing.T) {
	t.Parallel()

	c := cache.New(1024, time.Minute)

	first := archive.Entry{Index: 1, Size: 10}
	second := archive.Entry{Index: 1, Size: 20}

	c.Insert("/data/a.zip", "x.txt", 0, &first)
	require.EqualValues(t, 1, c.Len())

	c.Insert("/data/a.zip", "x.txt", 0, &second)
	require.EqualValues(t, 1, c.Len())

	got, ok := c.Get("/data/a.zip", "x.txt")
	require.True(t, ok)
	require.Equal(t, second, got)
}

// Test_Cache_LRUEviction_SizeTwo_Success replays spec.md §8's scenario 6:
// with cache size 2, inserting a third distinct path evicts the least
// recently touched of the first two.
func Test_Cache_LRUEviction_SizeTwo_Success(t *testing.T) {
	t.Parallel()

	c := cache.New(2, time.Minute)

	e1 := archive.Entry{Index: 1, Size: 1}
	e2 := archive.Entry{Index: 2, Size: 2}
	e3 := archive.Entry{Index: 3, Size: 3}

	c.Insert("/data/a.zip", "one", 0, &e1)
	c.Insert("/data/a.zip", "two", 0, &e2)

	// touch "one" so "two" becomes the least-recently-used entry
	_, ok := c.Get("/data/a.zip", "one")
	require.True(t, ok)

	c.Insert("/data/a.zip", "three", 0, &e3)

	require.EqualValues(t, 2, c.Len())

	_, ok = c.Get("/data/a.zip", "two")
	require.False(t, ok, "least-recently-used entry should have been evicted")

	_, ok = c.Get("/data/a.zip", "one")
	require.True(t, ok)

	_, ok = c.Get("/data/a.zip", "three")
	require.True(t, ok)
}

func Test_Cache_Expiry_PastGrace_EntryGone(t *testing.T) {
	t.Parallel()

	c := cache.New(1024, time.Millisecond)

	e := archive.Entry{Index: 1, Size: 1}
	c.Insert("/data/a.zip", "x", 0, &e)

	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("/data/a.zip", "x")
	require.False(t, ok)
}

func Test_Cache_ScanDir_NoParentEntry_ReturnsFalse(t *testing.T) {
	t.Parallel()

	c := cache.New(1024, time.Minute)

	found, err := c.ScanDir("/data/a.zip", func(string, archive.Entry) error { return nil })
	require.NoError(t, err)
	require.False(t, found)
}

// Test_Cache_ScanDir_ListsChildrenInsertedAgainstMatchingParentID mirrors
// peepfs_readdir's protocol: a bare placeholder is inserted first to
// capture the parent id, then children are inserted tagged with that id,
// and only then does scandir see them.
func Test_Cache_ScanDir_ListsChildrenInsertedAgainstMatchingParentID(t *testing.T) {
	t.Parallel()

	c := cache.New(1024, time.Minute)

	parentID := c.Insert("/data/a.zip", "", 0, nil)

	e1 := archive.Entry{Index: 0, Size: 1}
	e2 := archive.Entry{Index: 1, Size: 2, Flags: archive.FlagDir}

	c.Insert("/data/a.zip", "one.txt", parentID, &e1)
	c.Insert("/data/a.zip", "sub", parentID, &e2)

	var seen []string
	found, err := c.ScanDir("/data/a.zip", func(rel string, e archive.Entry) error {
		seen = append(seen, rel)

		return nil
	})
	require.NoError(t, err)
	require.True(t, found)
	require.ElementsMatch(t, []string{"one.txt", "sub"}, seen)
}

// Test_Cache_ScanDir_StaleParentID_ChildrenNotAttached verifies spec.md
// §9's Open Question (b)/parent-generation rule: a child inserted with an
// archiveID that does not match the parent's *current* id is never
// attached to that parent's child list.
func Test_Cache_ScanDir_StaleParentID_ChildrenNotAttached(t *testing.T) {
	t.Parallel()

	c := cache.New(1024, time.Minute)

	staleID := c.Insert("/data/a.zip", "", 0, nil)

	// Re-insert the placeholder: this allocates a new id, invalidating staleID.
	freshID := c.Insert("/data/a.zip", "", 0, nil)
	require.NotEqual(t, staleID, freshID)

	e := archive.Entry{Index: 0, Size: 1}
	c.Insert("/data/a.zip", "ghost.txt", staleID, &e)

	var seen []string
	_, err := c.ScanDir("/data/a.zip", func(rel string, _ archive.Entry) error {
		seen = append(seen, rel)

		return nil
	})
	require.NoError(t, err)
	require.Empty(t, seen)
}

// Test_Cache_DirectLookup_ArchiveIDZero_NeverAttachesToParent replays
// spec.md §9 Open Question (b): getattr's cache-insert always uses
// archive_id 0, so a directly looked-up entry never becomes a child for
// scandir purposes, even if its parent placeholder already exists.
func Test_Cache_DirectLookup_ArchiveIDZero_NeverAttachesToParent(t *testing.T) {
	t.Parallel()

	c := cache.New(1024, time.Minute)

	c.Insert("/data/a.zip", "", 0, nil)

	e := archive.Entry{Index: 0, Size: 1}
	c.Insert("/data/a.zip", "direct.txt", 0, &e)

	var seen []string
	_, err := c.ScanDir("/data/a.zip", func(rel string, _ archive.Entry) error {
		seen = append(seen, rel)

		return nil
	})
	require.NoError(t, err)
	require.Empty(t, seen)

	got, ok := c.Get("/data/a.zip", "direct.txt")
	require.True(t, ok)
	require.Equal(t, e, got)
}

func Test_Cache_Free_ClearsEverything(t *testing.T) {
	t.Parallel()

	c := cache.New(1024, time.Minute)

	e := archive.Entry{Index: 0, Size: 1}
	c.Insert("/data/a.zip", "x", 0, &e)
	require.EqualValues(t, 1, c.Len())

	c.Free()
	require.EqualValues(t, 0, c.Len())

	_, ok := c.Get("/data/a.zip", "x")
	require.False(t, ok)
}

// Test_Cache_DeletingChild_CascadesToParent replicates peepfs_cache.h's
// __peepfs_cache_delete cascade: removing a child entry (here, via LRU
// eviction) also deletes its parent placeholder, since the parent's
// listing is no longer complete once one of its children is gone.
func Test_Cache_DeletingChild_CascadesToParent(t *testing.T) {
	t.Parallel()

	c := cache.New(2, time.Minute)

	parentID := c.Insert("/data/a.zip", "", 0, nil) // slot 1

	e := archive.Entry{Index: 0, Size: 1}
	c.Insert("/data/a.zip", "child.txt", parentID, &e) // slot 2, cache full

	// Touch the parent so the child becomes the LRU head, then insert a
	// third distinct path: this evicts the child, which must cascade to
	// delete the parent placeholder too.
	_, ok := c.Get("/data/a.zip", "")
	require.True(t, ok)

	other := archive.Entry{Index: 0, Size: 1}
	c.Insert("/data/other.zip", "", 0, &other)

	_, ok = c.Get("/data/a.zip", "child.txt")
	require.False(t, ok)

	found, err := c.ScanDir("/data/a.zip", func(string, archive.Entry) error { return nil })
	require.NoError(t, err)
	require.False(t, found, "parent placeholder should have been cascade-deleted")
}
