package realtime

import (
	"sort"
	"sync"
)

// Registry is the many-to-many index between connections and the lots they
// watch. It is process-local; a shared backend can replace it behind this
// interface when the API runs as several replicas.
type Registry interface {
	Add(connID string, lotID int)
	Remove(connID string, lotID int)
	// RemoveConn drops every subscription of connID.
	RemoveConn(connID string)
	Subscribers(lotID int) []string
	LotsOf(connID string) []int
}

type memoryRegistry struct {
	mu     sync.RWMutex
	byLot  map[int]map[string]struct{}
	byConn map[string]map[int]struct{}
}

func NewRegistry() Registry {
	return &memoryRegistry{
		byLot:  make(map[int]map[string]struct{}),
		byConn: make(map[string]map[int]struct{}),
	}
}

func (r *memoryRegistry) Add(connID string, lotID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byLot[lotID] == nil {
		r.byLot[lotID] = make(map[string]struct{})
	}
	r.byLot[lotID][connID] = struct{}{}
	if r.byConn[connID] == nil {
		r.byConn[connID] = make(map[int]struct{})
	}
	r.byConn[connID][lotID] = struct{}{}
}

func (r *memoryRegistry) Remove(connID string, lotID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(connID, lotID)
}

func (r *memoryRegistry) remove(connID string, lotID int) {
	if conns, ok := r.byLot[lotID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byLot, lotID)
		}
	}
	if lots, ok := r.byConn[connID]; ok {
		delete(lots, lotID)
		if len(lots) == 0 {
			delete(r.byConn, connID)
		}
	}
}

func (r *memoryRegistry) RemoveConn(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for lotID := range r.byConn[connID] {
		r.remove(connID, lotID)
	}
}

func (r *memoryRegistry) Subscribers(lotID int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byLot[lotID]))
	for id := range r.byLot[lotID] {
		ids = append(ids, id)
	}
	return ids
}

func (r *memoryRegistry) LotsOf(connID string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lots := make([]int, 0, len(r.byConn[connID]))
	for id := range r.byConn[connID] {
		lots = append(lots, id)
	}
	sort.Ints(lots)
	return lots
}
