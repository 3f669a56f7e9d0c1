// Package cache implements the metadata cache of spec.md §4.D: a bounded,
// time-expiring, LRU-evicting cache of archive member descriptors, keyed by
// (archive-path, member-path), with a per-archive child grouping that lets
// a directory listing be served without re-opening and re-scanning the
// archive.
//
// It is grounded directly on the original implementation's
// peepfs_cache.h, which embeds each entry in three intrusive C lists (a
// uthash hash table, a utlist LRU list and a utlist expiry list) plus a
// per-archive singly-linked child list. Go has no equivalent free
// intrusive multi-linked structure, but unlike C it also has no ownership-
// aliasing hazard from using direct pointers (the garbage collector owns
// reachability), so this port keeps the original's doubly-linked-pointer
// shape verbatim rather than translating it into an arena-of-ids plus
// auxiliary index slices: every entry still carries prev/next (LRU),
// prevExpire/nextExpire (expiry) and a childHead/childNext chain (per-
// archive children), with the map giving O(1) hash lookup by full path.
package cache

import (
	"sync"
	"time"

	"github.com/benjarvis/peepfs/internal/archive"
)

// Entry is the cache entry of spec.md §3.
type Entry struct {
	ID          uint64
	ArchiveID   uint64
	ArchivePath string
	MemberRel   string
	FullPath    string
	Descriptor  archive.Entry
	HasEntry    bool
}

// node is the internal representation; Entry above is the copy callers see.
type node struct {
	Entry

	expireAt time.Time

	prev, next             *node // LRU list (head = least-recently-used)
	prevExpire, nextExpire *node // expiry list (head = earliest expiry)

	childHead *node // per-archive child list head (only meaningful when HasEntry == false, i.e. this node is a parent placeholder)
	childNext *node // next sibling in the parent's child list
}

// Cache is the metadata cache. A single mutex serialises every public
// operation, matching spec.md §5's "one mutex for all public operations;
// critical sections are short."
type Cache struct {
	mu sync.Mutex

	byPath map[string]*node

	lruHead, lruTail       *node
	expireHead, expireTail *node

	nextID      uint64
	numEntries  int64
	maxEntries  int64
	grace       time.Duration
	now         func() time.Time
}

// New builds a [Cache] bounded to maxEntries, with entries expiring grace
// after insertion.
func New(maxEntries int64, grace time.Duration) *Cache {
	return &Cache{
		byPath:     make(map[string]*node),
		maxEntries: maxEntries,
		grace:      grace,
		nextID:     1, // id 0 is reserved: "no parent", per spec.md §9 Open Question (a)
		now:        time.Now,
	}
}

func fullPath(archivePath, memberRel string) string {
	if memberRel == "" {
		return archivePath
	}

	return archivePath + "/" + memberRel
}

// Insert implements spec.md §4.D's insert: expunge-expired, replace any
// existing entry at the same full path, evict the LRU head if at
// capacity, insert at the LRU and expiry tails, and — only if archiveID
// names a parent whose current id still matches — append to that parent's
// child list and refresh its LRU position. memberRel == "" and a
// zero-value entry (HasEntry == false) together mean "bare archive
// placeholder used for child lookups".
func (c *Cache) Insert(archivePath, memberRel string, archiveID uint64, entry *archive.Entry) uint64 {
	full := fullPath(archivePath, memberRel)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.expungeLocked()

	id := c.nextID
	c.nextID++

	if existing, ok := c.byPath[full]; ok {
		c.deleteLocked(existing)
	}

	if c.numEntries == c.maxEntries && c.lruHead != nil {
		c.deleteLocked(c.lruHead)
	}

	n := &node{
		Entry: Entry{
			ID:          id,
			ArchivePath: archivePath,
			MemberRel:   memberRel,
			FullPath:    full,
		},
		expireAt: c.now().Add(c.grace),
	}
	if entry != nil {
		n.Descriptor = *entry
		n.HasEntry = true
	}

	c.byPath[full] = n
	c.numEntries++

	c.lruAppend(n)
	c.expireAppend(n)

	if archiveID != 0 {
		n.ArchiveID = archiveID

		if parent, ok := c.byPath[archivePath]; ok && parent.ID == archiveID {
			c.lruTouch(parent)
			c.childAppend(parent, n)
		}
	}

	return id
}

// Get implements spec.md §4.D's get.
func (c *Cache) Get(archivePath, memberRel string) (archive.Entry, bool) {
	full := fullPath(archivePath, memberRel)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.expungeLocked()

	n, ok := c.byPath[full]
	if !ok {
		return archive.Entry{}, false
	}

	c.lruTouch(n)

	return n.Descriptor, true
}

// ScanFunc is invoked once per child during ScanDir.
type ScanFunc func(memberRel string, entry archive.Entry) error

// ScanDir implements spec.md §4.D's scandir: looks up the bare archive
// placeholder entry and, if present, walks its child list invoking fn for
// each, touching LRU as it goes; returns false if no placeholder entry is
// cached for archivePath.
func (c *Cache) ScanDir(archivePath string, fn ScanFunc) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expungeLocked()

	parent, ok := c.byPath[archivePath]
	if !ok || parent.HasEntry {
		return false, nil
	}

	for child := parent.childHead; child != nil; child = child.childNext {
		c.lruTouch(child)

		if err := fn(child.MemberRel, child.Descriptor); err != nil {
			return true, err
		}
	}

	c.lruTouch(parent)

	return true, nil
}

// Free drops every cached entry.
func (c *Cache) Free() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byPath = make(map[string]*node)
	c.lruHead, c.lruTail = nil, nil
	c.expireHead, c.expireTail = nil, nil
	c.numEntries = 0
}

// Len reports the current number of cached entries (test/diagnostic use).
func (c *Cache) Len() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.numEntries
}

// --- internal list surgery, all called with c.mu held ---

func (c *Cache) expungeLocked() {
	now := c.now()

	for c.expireHead != nil && c.expireHead.expireAt.Before(now) {
		c.deleteLocked(c.expireHead)
	}
}

// deleteLocked removes n from every index. If n has a parent (ArchiveID
// != 0) and that parent still carries the same id, the parent is deleted
// too — recursively unlinking the rest of its children via the same rule.
// This is spec.md §4.D's delete helper and §9's "parent-generation
// invariant": a stale ArchiveID means the parent was rebuilt, so an
// orphaned child is cleaned up as soon as it is next touched.
func (c *Cache) deleteLocked(n *node) {
	if n.ArchiveID != 0 {
		if parent, ok := c.byPath[n.ArchivePath]; ok && parent.ID == n.ArchiveID {
			c.deleteLocked(parent)
		}
	}

	c.lruRemove(n)
	c.expireRemove(n)
	delete(c.byPath, n.FullPath)
	c.numEntries--
}

func (c *Cache) lruAppend(n *node) {
	n.prev, n.next = c.lruTail, nil
	if c.lruTail != nil {
		c.lruTail.next = n
	} else {
		c.lruHead = n
	}
	c.lruTail = n
}

func (c *Cache) lruRemove(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else if c.lruHead == n {
		c.lruHead = n.next
	}

	if n.next != nil {
		n.next.prev = n.prev
	} else if c.lruTail == n {
		c.lruTail = n.prev
	}

	n.prev, n.next = nil, nil
}

func (c *Cache) lruTouch(n *node) {
	if c.lruTail == n {
		return
	}

	c.lruRemove(n)
	c.lruAppend(n)
}

func (c *Cache) expireAppend(n *node) {
	n.prevExpire, n.nextExpire = c.expireTail, nil
	if c.expireTail != nil {
		c.expireTail.nextExpire = n
	} else {
		c.expireHead = n
	}
	c.expireTail = n
}

func (c *Cache) expireRemove(n *node) {
	if n.prevExpire != nil {
		n.prevExpire.nextExpire = n.nextExpire
	} else if c.expireHead == n {
		c.expireHead = n.nextExpire
	}

	if n.nextExpire != nil {
		n.nextExpire.prevExpire = n.prevExpire
	} else if c.expireTail == n {
		c.expireTail = n.prevExpire
	}

	n.prevExpire, n.nextExpire = nil, nil
}

func (c *Cache) childAppend(parent, child *node) {
	if parent.childHead == nil {
		parent.childHead = child

		return
	}

	last := parent.childHead
	for last.childNext != nil {
		last = last.childNext
	}
	last.childNext = child
}
