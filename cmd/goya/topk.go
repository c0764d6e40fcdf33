package main

import (
	"container/heap"

	"github.com/atelier-tools/goya"
)

type clusterscore struct {
	embed *goya.Embedding
	score float32
}

type MinHeap []clusterscore

func (h MinHeap) Len() int           { return len(h) }
func (h MinHeap) Less(i, j int) bool { return h[i].score < h[j].score }
func (h MinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *MinHeap) Push(x any) {
	*h = append(*h, x.(clusterscore))
}

func (h *MinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]

	return x
}

// TopKTracker retains the k highest scoring embeddings seen so far. The
// backing min-heap keeps the current cutoff at the root so most items cost
// one comparison.
type TopKTracker struct {
	k    int
	heap MinHeap
}

func NewTopKTracker(k int) *TopKTracker {
	topk := &TopKTracker{
		k:    k,
		heap: make(MinHeap, 0, k),
	}
	heap.Init(&topk.heap)
	return topk
}

func (t *TopKTracker) ProcessItem(embed *goya.Embedding, score float32) {
	if len(t.heap) < t.k {
		heap.Push(&t.heap, clusterscore{embed, score})
		return
	}

	if score > t.heap[0].score {
		heap.Pop(&t.heap)
		heap.Push(&t.heap, clusterscore{embed, score})
	}
}

func (t *TopKTracker) GetTopK() []clusterscore {
	tempHeap := make(MinHeap, len(t.heap))
	copy(tempHeap, t.heap)

	// Pop items in descending score order
	result := make([]clusterscore, len(tempHeap))
	for i := len(tempHeap) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&tempHeap).(clusterscore)
	}
	return result
}
