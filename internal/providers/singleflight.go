package providers

import "sync"

// SingleFlight collapses concurrent calls for the same key into one upstream
// request. The sportsdb proxy keys on the forwarded endpoint+query so a burst
// of identical requests costs a single upstream call.
type SingleFlight struct {
	mu    sync.Mutex
	calls map[string]*inflightCall
}

type inflightCall struct {
	wg  sync.WaitGroup
	val []byte
	err error
}

// Do runs fn once per key at a time. Callers arriving while fn is in flight
// wait and receive the same result; shared reports whether the result came
// from another caller's invocation.
func (g *SingleFlight) Do(key string, fn func() ([]byte, error)) (val []byte, err error, shared bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*inflightCall)
	}

	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err, true
	}

	c := &inflightCall{}
	c.wg.Add(1)
	g.calls[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()
	c.wg.Done()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()

	return c.val, c.err, false
}
