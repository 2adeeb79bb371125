package backend

import (
	"container/heap"
	"encoding/binary"
	"math"
)

// Normalize returns a unit-length copy of v. A zero vector stays zero.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Similarity returns the cosine similarity of a and b clamped to [0, 1].
// Vectors of different length score 0.
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return ClampSimilarity(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// ClampSimilarity bounds a similarity score to [0, 1].
func ClampSimilarity(s float64) float64 {
	switch {
	case math.IsNaN(s), s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// EncodeVector serializes v as little-endian float32s.
func EncodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector. Trailing partial words are ignored.
func DecodeVector(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// TopK keeps the best limit hits seen so far. Ordering is similarity
// descending, then id ascending.
type TopK struct {
	limit int
	h     scoredHeap
}

// NewTopK returns a collector for at most limit results (10 when limit <= 0).
func NewTopK(limit int) *TopK {
	if limit <= 0 {
		limit = 10
	}
	return &TopK{limit: limit}
}

// Offer considers task with the given score.
func (k *TopK) Offer(task Task, score float64) {
	hit := ScoredTask{Task: task, Similarity: ClampSimilarity(score)}
	if k.h.Len() < k.limit {
		heap.Push(&k.h, hit)
		return
	}
	if worse(k.h[0], hit) {
		k.h[0] = hit
		heap.Fix(&k.h, 0)
	}
}

// Results drains the collector in ranking order.
func (k *TopK) Results() []ScoredTask {
	out := make([]ScoredTask, k.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&k.h).(ScoredTask)
	}
	return out
}

// worse reports whether a ranks below b.
func worse(a, b ScoredTask) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity < b.Similarity
	}
	return a.ID > b.ID
}

// scoredHeap is a min-heap with the worst hit at the root.
type scoredHeap []ScoredTask

func (h scoredHeap) Len() int           { return len(h) }
func (h scoredHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h scoredHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x any)        { *h = append(*h, x.(ScoredTask)) }
func (h *scoredHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
