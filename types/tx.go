package types

import (
	"math/big"

	"github.com/spacemeshos/go-scale"
)

type TxKind uint8

const (
	TxRegister TxKind = iota + 1
	TxWithdraw
)

func (k TxKind) String() string {
	switch k {
	case TxRegister:
		return "register"
	case TxWithdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

// Tx is the payload an account signs to call the ledger.
type Tx struct {
	ChainID uint64 `json:"chainId"`
	Kind    TxKind `json:"kind"`
	// Value is the attached payment in wei, big-endian.
	Value []byte `json:"value,omitempty"`
	// Nonce makes otherwise identical transactions distinct.
	Nonce uint64 `json:"nonce"`
}

func NewTx(chainID uint64, kind TxKind, value *big.Int, nonce uint64) Tx {
	tx := Tx{ChainID: chainID, Kind: kind, Nonce: nonce}
	if value != nil {
		tx.Value = value.Bytes()
	}
	return tx
}

func (t *Tx) Amount() *big.Int {
	return new(big.Int).SetBytes(t.Value)
}

func (t *Tx) EncodeScale(enc *scale.Encoder) (total int, err error) {
	{
		n, err := scale.EncodeCompact64(enc, t.ChainID)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeCompact8(enc, uint8(t.Kind))
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeByteSliceWithLimit(enc, t.Value, 32)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeCompact64(enc, t.Nonce)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
