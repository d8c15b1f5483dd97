/*
Package ledger implements the registration ledger: the authoritative state machine that
collects a fixed fee from each registering account and lets its owner withdraw the funds.

Every mutating call runs under a single sequencer. Its preconditions are checked before
anything is written; its state change and the event it emits are committed to leveldb in
one transaction. Events are grouped into blocks. A block is opened by the first call after
the previous seal and sealed either right away (automine) or on a timer by Run. Sealing
assigns the block hash, publishes the block's events to subscribers and resolves the
pending handles of the calls it contains.

The ordering key of an event is its (block height, index within block). Block timestamps
come from the ledger clock and are informational only.
*/
package ledger
