// Package resilience implements the circuit breaker pattern and a
// per-dependency breaker registry.
//
// A breaker passes calls through while closed, rejects them immediately
// while open, and after a cooldown cautiously probes recovery in the
// half-open state. Transitions are linearizable under the breaker's lock;
// the wrapped operation itself always runs outside it.
package resilience
