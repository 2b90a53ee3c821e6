package scheduler

import "container/heap"

// jobHeap implements container/heap.Interface for Job, earliest TriggerAt first.
type jobHeap []Job

func (h jobHeap) Len() int           { return len(h) }
func (h jobHeap) Less(i, j int) bool { return h[i].TriggerAt.Before(h[j].TriggerAt) }
func (h jobHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) {
	*h = append(*h, x.(Job))
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func heapPush(h *jobHeap, j Job) { heap.Push(h, j) }

// heapPop removes the earliest job. Panics if the heap is empty.
func heapPop(h *jobHeap) Job { return heap.Pop(h).(Job) }

// heapRemoveByID removes every job with the given ID and reports whether any was found.
func heapRemoveByID(h *jobHeap, id string) bool {
	kept := (*h)[:0]
	for _, j := range *h {
		if j.ID != id {
			kept = append(kept, j)
		}
	}
	found := len(kept) != h.Len()
	*h = kept
	if found {
		heap.Init(h)
	}
	return found
}
