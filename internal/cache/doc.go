// Package cache provides a bounded, TTL-aware LRU cache used to memoize
// rate-limited or expensive lookups, plus a manager for named instances.
package cache
