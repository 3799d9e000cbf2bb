package monitor

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// dedupeWindow remembers the most recent event IDs, evicting oldest first
type dedupeWindow struct {
	mu       sync.Mutex
	capacity int
	order    []string
	set      mapset.Set[string]
}

func newDedupeWindow(capacity int) *dedupeWindow {
	return &dedupeWindow{
		capacity: capacity,
		set:      mapset.NewThreadUnsafeSet[string](),
	}
}

// markSeen records the ID and reports whether it was already in the window
func (d *dedupeWindow) markSeen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.set.Contains(id) {
		return true
	}
	d.set.Add(id)
	d.order = append(d.order, id)
	if len(d.order) > d.capacity {
		d.set.Remove(d.order[0])
		d.order = d.order[1:]
	}
	return false
}
