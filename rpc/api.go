package rpc

import (
	"math/big"

	"github.com/eventreg/eventreg/types"
)

// Routes served by Server.
const (
	PathInfo         = "/v1/info"
	PathBlockNumber  = "/v1/block-number"
	PathParticipants = "/v1/participants"
	PathEvents       = "/v1/events"
	PathRegister     = "/v1/register"
	PathWithdraw     = "/v1/withdraw"
	PathReceipts     = "/v1/receipts"
	PathSubscribe    = "/v1/subscribe"
)

type InfoResponse struct {
	Owner            types.Address `json:"owner"`
	Fee              *big.Int      `json:"fee"`
	ChainID          uint64        `json:"chainId"`
	ParticipantCount uint64        `json:"participantCount"`
	Balance          *big.Int      `json:"balance"`
	TotalCollected   *big.Int      `json:"totalCollected"`
	BlockNumber      uint64        `json:"blockNumber"`
	ParticipantsRoot []byte        `json:"participantsRoot,omitempty"`
}

type BlockNumberResponse struct {
	BlockNumber uint64 `json:"blockNumber"`
}

type ParticipantsResponse struct {
	Participants []types.Address `json:"participants"`
}

type RegistrationResponse struct {
	Address    types.Address `json:"address"`
	Registered bool          `json:"registered"`
}

type EventsResponse struct {
	Logs []types.Log `json:"logs"`
}

type SubmitResponse struct {
	TxID string `json:"txId"`
}

// CodeInvalidTransaction marks a rejected transaction envelope.
const CodeInvalidTransaction = "invalid_transaction"

// ErrorResponse is the body of every non-2xx response. Code is set for
// precondition violations and identifies the violated rule.
type ErrorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
