// Package aggregates contains the transaction primitives behind aggregate
// writes: a TxRunner, retry of whole units on retryable store errors, and
// classification of store errors into aggregate error codes.
package aggregates
