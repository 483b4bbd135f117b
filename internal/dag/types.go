package dag

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Graph is the prerequisite graph of one composition pass. Node IDs are
// part identifiers. It is safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*node
}

type node struct {
	id string
	// prereqs are the nodes whose exports this node needs before it can
	// produce its own.
	prereqs    map[string]*node
	dependents map[string]*node
}

// ErrCycle is matched by every *CycleError.
var ErrCycle = errors.New("cycle detected")

// CycleError names one cycle of the graph, first node repeated at the end.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

type idHeap []string

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)        { *h = append(*h, x.(string)) }
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
