// Package rpc serves a registration ledger over HTTP. Queries and signed
// transactions use JSON; live events are streamed over a websocket.
package rpc
