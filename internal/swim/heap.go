package swim

import "container/heap"

// gossipEntry is one rumor waiting to be disseminated: a snapshot of a
// member record plus how many times it has already gone out in a payload.
type gossipEntry struct {
	member       Member
	timesGossiped int
	index        int // heap.Interface bookkeeping
}

// gossipHeap is a min-priority queue ordered ascending by timesGossiped,
// giving least-gossiped-first extraction. Ties are broken arbitrarily; no
// code may rely on heap stability (container/heap does not guarantee it).
type gossipHeap struct {
	entries []*gossipEntry
	byPeer  map[Node]*gossipEntry
}

func newGossipHeap() *gossipHeap {
	return &gossipHeap{byPeer: make(map[Node]*gossipEntry)}
}

// --- container/heap.Interface ---

func (h *gossipHeap) Len() int { return len(h.entries) }

func (h *gossipHeap) Less(i, j int) bool {
	return h.entries[i].timesGossiped < h.entries[j].timesGossiped
}

func (h *gossipHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.entries[i].index = i
	h.entries[j].index = j
}

func (h *gossipHeap) Push(x any) {
	e := x.(*gossipEntry)
	e.index = len(h.entries)
	h.entries = append(h.entries, e)
}

func (h *gossipHeap) Pop() any {
	old := h.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	h.entries = old[:n-1]
	return e
}

// --- domain operations ---

// removeByPeer removes any existing entry for peer from the heap, if
// present.
func (h *gossipHeap) removeByPeer(peer Node) {
	e, ok := h.byPeer[peer]
	if !ok {
		return
	}
	heap.Remove(h, e.index)
	delete(h.byPeer, peer)
}

// add removes any existing entry for the same peer (endpoint and UID) and inserts a fresh
// one at timesGossiped = 0, per addToGossip / resetGossipPayloads.
func (h *gossipHeap) add(member Member) {
	h.removeByPeer(member.Peer)
	e := &gossipEntry{member: member.clone()}
	heap.Push(h, e)
	h.byPeer[member.Peer] = e
}

// popLeastGossiped removes and returns the entry with the smallest
// timesGossiped, or ok=false when the heap is empty.
func (h *gossipHeap) popLeastGossiped() (*gossipEntry, bool) {
	if h.Len() == 0 {
		return nil, false
	}
	e := heap.Pop(h).(*gossipEntry)
	delete(h.byPeer, e.member.Peer)
	return e, true
}

// reinsert pushes an entry (already removed via popLeastGossiped) back in,
// at its current timesGossiped.
func (h *gossipHeap) reinsert(e *gossipEntry) {
	heap.Push(h, e)
	h.byPeer[e.member.Peer] = e
}
