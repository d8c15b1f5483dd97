// Package synchronizer keeps a local list of registered identities in step
// with a ledger.
//
// At start and after every Reset a new generation reads the last Window
// blocks of Registered events and opens a live subscription. Both feed a
// single worker that applies events to a Projection keyed by
// (block, log index), so an event seen on both paths is applied once and
// the result does not depend on delivery order. Removed notices retract the
// event they name. Gateway failures are retried with exponential backoff and
// reported as StateDegraded; they never clear the list.
package synchronizer
