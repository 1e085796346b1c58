package blockfs

import "testing"

func Test_FreeList_Insert_KeepsAscendingOrder(t *testing.T) {
	t.Parallel()

	var fl freeList

	sizes := []int64{64, 16, 256, 32, 128}
	for _, size := range sizes {
		fl.insert(&node{nodeSize: size})
	}

	if !fl.sorted() {
		t.Fatal("free list is not sorted after inserts")
	}

	if fl.size != len(sizes) {
		t.Fatalf("size=%d, want %d", fl.size, len(sizes))
	}

	var got []int64
	for cur := fl.head; cur != nil; cur = cur.next {
		got = append(got, cur.nodeSize)
	}

	want := []int64{16, 32, 64, 128, 256}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func Test_FreeList_FirstFit_ReturnsSmallestQualifying(t *testing.T) {
	t.Parallel()

	var fl freeList
	for _, size := range []int64{16, 32, 64, 128} {
		fl.insert(&node{nodeSize: size})
	}

	got := fl.firstFit(40)
	if got == nil || got.nodeSize != 64 {
		t.Fatalf("firstFit(40) returned nodeSize=%v, want 64", got)
	}
}

func Test_FreeList_FirstFit_ReturnsNilWhenNothingFits(t *testing.T) {
	t.Parallel()

	var fl freeList
	fl.insert(&node{nodeSize: 16})

	if got := fl.firstFit(1024); got != nil {
		t.Fatalf("firstFit(1024)=%v, want nil", got)
	}
}

func Test_FreeList_Unlink_RemovesNodeAndPreservesOrder(t *testing.T) {
	t.Parallel()

	var fl freeList

	a := &node{nodeSize: 16}
	b := &node{nodeSize: 32}
	c := &node{nodeSize: 64}

	fl.insert(a)
	fl.insert(b)
	fl.insert(c)

	fl.unlink(b)

	if fl.size != 2 {
		t.Fatalf("size=%d, want 2", fl.size)
	}

	if !fl.sorted() {
		t.Fatal("free list is not sorted after unlink")
	}

	if b.prev != nil || b.next != nil {
		t.Fatal("unlinked node still references list neighbors")
	}

	if fl.head != a || fl.tail != c {
		t.Fatalf("head=%v tail=%v, want head=a tail=c", fl.head, fl.tail)
	}
}

func Test_FreeList_TotalSize_SumsEveryNode(t *testing.T) {
	t.Parallel()

	var fl freeList
	for _, size := range []int64{16, 32, 64} {
		fl.insert(&node{nodeSize: size})
	}

	if got := fl.totalSize(); got != 112 {
		t.Fatalf("totalSize=%d, want 112", got)
	}
}
