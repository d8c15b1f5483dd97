package signing

import (
	"github.com/eventreg/eventreg/types"
)

// Envelope is the wire form of a signed transaction.
type Envelope struct {
	Tx        types.Tx `json:"tx"`
	PubKey    []byte   `json:"pubkey"`
	Signature []byte   `json:"signature"`
}

func Seal(signed Signed[types.Tx]) Envelope {
	return Envelope{
		Tx:        *signed.Data(),
		PubKey:    signed.PubKey(),
		Signature: signed.Signature(),
	}
}

// Open verifies the envelope signature.
func Open(env Envelope) (Signed[types.Tx], error) {
	return NewFromScaleEncodable(env.Tx, env.Signature, env.PubKey)
}
