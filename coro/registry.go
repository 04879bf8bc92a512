package coro

import (
	"sort"
	"sync"
)

// Live coroutines are tracked in a side table for introspection: an entry is
// added when a coroutine starts and removed when it terminates, so the table
// never keeps finished coroutines alive. Unstarted coroutines are invisible
// here; they hold no resources worth inspecting.
var liveTable struct {
	sync.Mutex
	m map[uint64]*Coroutine
}

func registerLive(c *Coroutine) {
	liveTable.Lock()
	defer liveTable.Unlock()
	if liveTable.m == nil {
		liveTable.m = make(map[uint64]*Coroutine)
	}
	liveTable.m[c.id] = c
}

func deregisterLive(c *Coroutine) {
	liveTable.Lock()
	defer liveTable.Unlock()
	delete(liveTable.m, c.id)
}

// Live returns all started, unfinished coroutines, ordered by id.
func Live() []*Coroutine {
	liveTable.Lock()
	defer liveTable.Unlock()
	out := make([]*Coroutine, 0, len(liveTable.m))
	for _, c := range liveTable.m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Find returns the live coroutine with the given id, if any.
func Find(id uint64) (*Coroutine, bool) {
	liveTable.Lock()
	defer liveTable.Unlock()
	c, ok := liveTable.m[id]
	return c, ok
}
