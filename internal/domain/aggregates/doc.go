// Package aggregates defines domain-facing aggregate contracts.
//
// An aggregate is a write boundary whose invariants hold atomically: either
// every row it touches is committed or none is.
package aggregates
