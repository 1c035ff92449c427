// Package ratelimit implements token-bucket rate limiting with multiple
// simultaneous named ceilings (per-second, per-minute, per-day).
//
// A call is admitted only when every bucket has capacity; the reported wait
// on rejection is the maximum across all buckets. Acquire polls in small
// increments so context cancellation stays responsive.
package ratelimit
