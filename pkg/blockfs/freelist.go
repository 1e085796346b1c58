package blockfs

// freeList is a doubly linked list of free nodes, kept sorted by ascending
// nodeSize, supporting O(1) unlink-by-reference and O(n) insert/first-fit.
// Mutated only under the store's write lock; the read path never consults
// it, and Stats only reads its length and total size under the read lock.
type freeList struct {
	head, tail *node
	size       int
}

// insert adds n to the list in ascending-size order.
func (fl *freeList) insert(n *node) {
	n.status = statusFree

	if fl.head == nil {
		n.prev, n.next = nil, nil
		fl.head, fl.tail = n, n
		fl.size++

		return
	}

	cur := fl.head
	for cur != nil && cur.nodeSize < n.nodeSize {
		cur = cur.next
	}

	if cur == nil {
		// n is the new largest: append at tail.
		n.prev = fl.tail
		n.next = nil
		fl.tail.next = n
		fl.tail = n
	} else {
		n.next = cur
		n.prev = cur.prev

		if cur.prev == nil {
			fl.head = n
		} else {
			cur.prev.next = n
		}

		cur.prev = n
	}

	fl.size++
}

// unlink removes n from the list. n must currently be linked in fl.
func (fl *freeList) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		fl.head = n.next
	}

	if n.next != nil {
		n.next.prev = n.prev
	} else {
		fl.tail = n.prev
	}

	n.prev, n.next = nil, nil
	fl.size--
}

// firstFit returns the first node whose nodeSize is at least required, or
// nil if none qualifies. Because the list is sorted ascending, the first
// qualifying node is also the smallest qualifying node.
func (fl *freeList) firstFit(required int64) *node {
	for cur := fl.head; cur != nil; cur = cur.next {
		if cur.nodeSize >= required {
			return cur
		}
	}

	return nil
}

// totalSize returns the sum of nodeSize across every free node, which the
// store tracks as freeSize for the fragmentation ratio.
func (fl *freeList) totalSize() int64 {
	var total int64
	for cur := fl.head; cur != nil; cur = cur.next {
		total += cur.nodeSize
	}

	return total
}

// sorted reports whether the list is in non-decreasing nodeSize order,
// used by tests to assert the invariant in SPEC_FULL.md §8.
func (fl *freeList) sorted() bool {
	for cur := fl.head; cur != nil && cur.next != nil; cur = cur.next {
		if cur.nodeSize > cur.next.nodeSize {
			return false
		}
	}

	return true
}
