package session

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/eventreg/eventreg/signing"
	"github.com/eventreg/eventreg/types"
)

// KeyWallet is a Wallet holding a single key. It never asks for approval.
type KeyWallet struct {
	key     ed25519.PrivateKey
	chainID func(ctx context.Context) (uint64, error)
}

// NewKeyWallet returns a wallet that reports the chain chainID returns.
func NewKeyWallet(key ed25519.PrivateKey, chainID func(ctx context.Context) (uint64, error)) *KeyWallet {
	return &KeyWallet{key: key, chainID: chainID}
}

func (w *KeyWallet) Address() types.Address {
	return signing.Address(w.key.Public().(ed25519.PublicKey))
}

func (w *KeyWallet) Accounts(ctx context.Context) ([]types.Address, error) {
	return []types.Address{w.Address()}, nil
}

func (w *KeyWallet) ChainID(ctx context.Context) (uint64, error) {
	return w.chainID(ctx)
}

func (w *KeyWallet) Sign(ctx context.Context, account types.Address, tx types.Tx) (signing.Envelope, error) {
	if account != w.Address() {
		return signing.Envelope{}, fmt.Errorf("no key for account %s", account)
	}
	signed, err := signing.Sign(tx, w.key)
	if err != nil {
		return signing.Envelope{}, err
	}
	return signing.Seal(signed), nil
}
