package sidecar

import "sync"

// kindCache holds the process-local, per-(namespace,kind) state described in spec §3. It is
// owned by exactly one loop (watch or list) for one (namespace, kind) pair and is never shared
// across loops, which is what lets the reconciler run lock-free internally; the mutex only makes
// each accessor safe for concurrent use (within the sidecar, only the owning loop goroutine calls
// them), mirroring the guard pkg/secrets/watch.go keeps around its watcher map.
type kindCache struct {
	mu sync.Mutex

	lastSeenVersion map[Key]string
	lastObject      map[Key]*Snapshot
	lastDestFolder  map[Key]string
}

func newKindCache() *kindCache {
	return &kindCache{
		lastSeenVersion: make(map[Key]string),
		lastObject:      make(map[Key]*Snapshot),
		lastDestFolder:  make(map[Key]string),
	}
}

func (c *kindCache) seenVersion(k Key) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lastSeenVersion[k]
	return v, ok
}

func (c *kindCache) setSeenVersion(k Key, v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeenVersion[k] = v
}

func (c *kindCache) dropSeenVersion(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lastSeenVersion, k)
}

func (c *kindCache) object(k Key) (*Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.lastObject[k]
	return o, ok
}

func (c *kindCache) setObject(k Key, s *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastObject[k] = s
}

func (c *kindCache) dropObject(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lastObject, k)
	delete(c.lastDestFolder, k)
}

func (c *kindCache) destFolder(k Key) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.lastDestFolder[k]
	return d, ok
}

func (c *kindCache) setDestFolder(k Key, d string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastDestFolder[k] = d
}

// knownKeys returns every (namespace,name) currently tracked by lastObject, used by the
// full-set reconciliation path to detect resources that stopped matching (§4.5).
func (c *kindCache) knownKeys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]Key, 0, len(c.lastObject))
	for k := range c.lastObject {
		keys = append(keys, k)
	}
	return keys
}
