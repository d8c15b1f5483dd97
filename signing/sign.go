package signing

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/minio/sha256-simd"
	"github.com/spacemeshos/go-scale"

	"github.com/eventreg/eventreg/types"
)

var (
	ErrSigningFailed    = errors.New("couldn't sign")
	ErrSignatureInvalid = errors.New("signature is invalid")
	ErrInvalidPubkeyLen = errors.New("pubkey has invalid length")
)

// Signed represents a signed T data.
// It provides a read-only access to it.
type Signed[T any] interface {
	// Data retrieves the underlying data.
	// The received data is READ ONLY.
	Data() *T
	PubKey() []byte
	Signature() []byte
	// Signer is the address derived from PubKey.
	Signer() types.Address
	// ID is a digest over the encoded data and the signature.
	ID() string
}

// signedData is a holder of data T which is
// guaranteed to be signed. It implements Signed[T] interface.
type signedData[T any] struct {
	data      T
	encoded   []byte
	pubkey    []byte
	signature []byte
}

func (d *signedData[T]) Data() *T {
	return &d.data
}

func (d *signedData[T]) PubKey() []byte {
	return d.pubkey
}

func (d *signedData[T]) Signature() []byte {
	return d.signature
}

func (d *signedData[T]) Signer() types.Address {
	return Address(d.pubkey)
}

func (d *signedData[T]) ID() string {
	h := sha256.New()
	h.Write(d.encoded)
	h.Write(d.signature)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

type notHashed struct{}

func (notHashed) HashFunc() crypto.Hash { return crypto.Hash(0) }

type encodable[P any] interface {
	scale.Encodable
	*P
}

func encode[T any, Encodable encodable[T]](data *T) ([]byte, error) {
	var dataBuf bytes.Buffer
	if _, err := Encodable(data).EncodeScale(scale.NewEncoder(&dataBuf)); err != nil {
		return nil, fmt.Errorf("failed to serialize data (%w)", err)
	}
	return dataBuf.Bytes(), nil
}

// Sign signs data with given signer.
// *T must implement scale.Encodable which is constrained by Encodable.
func Sign[T any, Encodable encodable[T]](data T, signer crypto.Signer) (Signed[T], error) {
	encoded, err := encode[T, Encodable](&data)
	if err != nil {
		return nil, err
	}
	pubkey, ok := signer.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: signer is not ed25519", ErrSigningFailed)
	}
	signature, err := signer.Sign(nil, encoded, notHashed{})
	if err != nil {
		return nil, fmt.Errorf("%w (%v)", ErrSigningFailed, err)
	}
	return &signedData[T]{
		data:      data,
		encoded:   encoded,
		pubkey:    pubkey,
		signature: signature,
	}, nil
}

// NewFromScaleEncodable constructs Signed[T] from a T.
// *T must implement scale.Encodable which is constrained by Encodable.
func NewFromScaleEncodable[T any, Encodable encodable[T]](data T, signature, pubkey []byte) (Signed[T], error) {
	// Serialize it for signature verification
	encoded, err := encode[T, Encodable](&data)
	if err != nil {
		return nil, err
	}
	if l := len(pubkey); l != ed25519.PublicKeySize {
		return nil, ErrInvalidPubkeyLen
	}
	if !ed25519.Verify(pubkey, encoded, signature) {
		return nil, ErrSignatureInvalid
	}

	return &signedData[T]{
		data:      data,
		encoded:   encoded,
		pubkey:    pubkey,
		signature: signature,
	}, nil
}

// Address derives the account address of an ed25519 public key: the last
// 20 bytes of its sha256 digest.
func Address(pubkey []byte) types.Address {
	digest := sha256.Sum256(pubkey)
	return types.BytesToAddress(digest[:])
}
