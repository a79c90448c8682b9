package stream

import "sync"

// Reasons a stream is refused, used as the metric label.
const (
	refusedPerClient = "per_client"
	refusedTotal     = "total"
)

// admission caps concurrent prediction streams per client and overall.
// A slot is held from admission until its release func runs.
type admission struct {
	mu        sync.Mutex
	active    map[string]int
	total     int
	perClient int
	capacity  int
}

func newAdmission(perClient, capacity int) *admission {
	return &admission{
		active:    make(map[string]int),
		perClient: perClient,
		capacity:  capacity,
	}
}

// admit reserves a slot for client. On refusal release is nil and reason
// names the limit that was hit. Calling release more than once is a no-op.
func (a *admission) admit(client string) (release func(), reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case a.total >= a.capacity:
		return nil, refusedTotal
	case a.active[client] >= a.perClient:
		return nil, refusedPerClient
	}
	a.active[client]++
	a.total++

	var once sync.Once
	return func() { once.Do(func() { a.free(client) }) }, ""
}

func (a *admission) free(client string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total--
	if a.active[client]--; a.active[client] <= 0 {
		delete(a.active, client)
	}
}

// streams returns the open streams of client and in total.
func (a *admission) streams(client string) (forClient, total int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active[client], a.total
}
