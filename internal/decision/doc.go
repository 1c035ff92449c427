// Package decision implements the veto-based consensus pipeline: a fixed
// sequence of independent evaluators, each able to unilaterally block the
// action, aggregated into one explainable, fail-safe result.
package decision
