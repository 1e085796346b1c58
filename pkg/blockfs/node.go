package blockfs

// node is the in-memory descriptor of one region of the data file, either
// live (status InUse, reachable from the store's index under name) or free
// (status Free, reachable from the store's free list). The store's node
// arena exclusively owns every node; the index and free list hold
// non-owning references (see SPEC_FULL.md §9 pointer-aliasing note) and
// neither ever outlives the store.
type node struct {
	nodeOffset int64
	nodeSize   int64

	dataOffset int64 // nodeOffset + headerSize(name); valid only when live
	dataSize   int64

	status status
	name   string // empty when free

	cache []byte // owned payload copy; nil when absent

	// prev/next thread this node through the store's free list. Both are
	// nil when the node is live or not currently linked.
	prev, next *node
}

func (n *node) isLive() bool {
	return n.status == statusInUse
}

// clearCache drops any owned payload copy.
func (n *node) clearCache() {
	n.cache = nil
}

// updateCache opportunistically copies payload into the node's cache if it
// fits under maxCacheSize, otherwise drops any existing cache. Matches
// SPEC_FULL.md §4.3: cache is populated after writes and dropped once a
// payload would exceed the configured limit.
func (n *node) updateCache(payload []byte, maxCacheSize int64) {
	if int64(len(payload)) > maxCacheSize {
		n.clearCache()
		return
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	n.cache = buf
}

// cacheMatches reports whether the node's cache holds exactly payload,
// byte-for-byte, letting the write path short-circuit a redundant write.
func (n *node) cacheMatches(payload []byte) bool {
	if n.cache == nil {
		return false
	}

	if len(n.cache) != len(payload) {
		return false
	}

	for i := range payload {
		if n.cache[i] != payload[i] {
			return false
		}
	}

	return true
}
