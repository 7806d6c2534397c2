// Package smtpctx implements the Global Context (spec §4.5): a
// process-wide (really: per-server, see below), string-keyed map that
// outlives any single connection, for plugin state such as shared
// database handles or TLS-session caches.
//
// Per spec §9's design note, the source treats this as a true process
// singleton; here it's a value owned by the Server instance instead, so
// two servers can run in one process without stepping on each other's
// state and tests start from a clean map. A thin package-level default
// (Default) is kept for the common single-server case.
package smtpctx

import "sync"

// Context is a concurrent string-keyed map with get/set/delete and no
// eviction. The spec only guarantees "last write wins" under concurrent
// access; sync.RWMutex gives that and more.
type Context struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// New returns an empty Context.
func New() *Context {
	return &Context{values: make(map[string]interface{})}
}

// Get returns the value stored under key, if any.
func (c *Context) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Set stores value under key, overwriting any previous value.
func (c *Context) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Delete removes key, if present.
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}

// Default is the Global Context for the common single-server case. A
// Server constructed without an explicit Context uses this one.
var Default = New()
