package logsources

import (
	"container/heap"

	"dbgview/internal/logline"
)

// Merge combines lanes into one slice ordered by Time. Each lane keeps its own order;
// among equal times the earlier lane goes first.
func Merge(lanes ...logline.Lines) logline.Lines {
	total := 0
	h := &laneHeap{}
	for i, lane := range lanes {
		total += len(lane)
		if len(lane) > 0 {
			*h = append(*h, &cursor{lane: lane, index: i})
		}
	}
	if total == 0 {
		return logline.Lines{}
	}
	if len(*h) == 1 {
		return append(logline.Lines(nil), (*h)[0].lane...)
	}

	heap.Init(h)
	out := make(logline.Lines, 0, total)
	for h.Len() > 0 {
		c := (*h)[0]
		out = append(out, c.lane[c.pos])
		c.pos++
		if c.pos == len(c.lane) {
			heap.Pop(h)
		} else {
			heap.Fix(h, 0)
		}
	}
	return out
}

// cursor is the read position within one lane.
type cursor struct {
	lane  logline.Lines
	pos   int
	index int
}

// laneHeap orders cursors by the time of their next line, then by lane index.
type laneHeap []*cursor

func (h laneHeap) Len() int { return len(h) }

func (h laneHeap) Less(i, j int) bool {
	ti, tj := h[i].lane[h[i].pos].Time, h[j].lane[h[j].pos].Time
	if ti != tj {
		return ti < tj
	}
	return h[i].index < h[j].index
}

func (h laneHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *laneHeap) Push(x interface{}) {
	*h = append(*h, x.(*cursor))
}

func (h *laneHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}
