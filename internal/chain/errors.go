package chain

import "errors"

var (
	// ErrUnavailable wraps transport and node failures. Callers may retry.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrSimulationRejected means the node refused the transfer during gas estimation.
	ErrSimulationRejected = errors.New("transfer rejected by simulation")
	// ErrReverted means the transfer was mined but failed on chain.
	ErrReverted = errors.New("transaction reverted")
	// ErrTxNotFound means the node has no record of the transaction.
	ErrTxNotFound = errors.New("transaction not found")
	// ErrQueueFull is returned when the signer queue cannot accept more work.
	ErrQueueFull = errors.New("signer queue full")
	// ErrQueueClosed is returned after the signer queue stopped.
	ErrQueueClosed = errors.New("signer queue closed")
)
