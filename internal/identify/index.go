// Package identify provides a 1:N face lookup over the registered subjects,
// backed by an in-memory HNSW graph with cosine distance.
package identify

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"
	"github.com/facegate/facegate/internal/database"
)

const maxNeighbors = 16

// ErrEmptyIndex is returned by Nearest when no subjects are indexed.
var ErrEmptyIndex = errors.New("index is empty")

// Candidate is one nearest-neighbor result. Score is cosine similarity, so
// higher is closer.
type Candidate struct {
	SubjectID string
	Score     float64
}

// Index maps probe embeddings to the closest registered subjects.
type Index struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[string]
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = maxNeighbors
	g.Ml = 1.0 / float64(maxNeighbors)
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given subjects. Subjects without
// an embedding are skipped.
func (idx *Index) Build(subjects []database.Subject) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	g := newGraph()
	for i := range subjects {
		if len(subjects[i].Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(subjects[i].ID, subjects[i].Embedding))
	}
	idx.graph = g
}

// Add inserts a single subject, typically right after registration.
func (idx *Index) Add(subject *database.Subject) {
	if len(subject.Embedding) == 0 {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.graph == nil {
		idx.graph = newGraph()
	}
	idx.graph.Add(hnsw.MakeNode(subject.ID, subject.Embedding))
}

// Len returns the number of indexed subjects.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.graph == nil {
		return 0
	}
	return idx.graph.Len()
}

// Nearest returns up to k candidates closest to the probe, best first.
func (idx *Index) Nearest(probe []float32, k int) ([]Candidate, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.graph == nil || idx.graph.Len() == 0 {
		return nil, ErrEmptyIndex
	}

	neighbors := idx.graph.Search(probe, k)
	candidates := make([]Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		// CosineDistance returns 1 - similarity.
		score := 1 - float64(hnsw.CosineDistance(probe, n.Value))
		candidates = append(candidates, Candidate{SubjectID: n.Key, Score: score})
	}
	return candidates, nil
}
