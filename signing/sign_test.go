package signing_test

import (
	"crypto/ed25519"
	"math/big"
	"testing"

	"github.com/spacemeshos/go-scale"
	"github.com/stretchr/testify/require"

	"github.com/eventreg/eventreg/signing"
	"github.com/eventreg/eventreg/types"
)

type Foo struct {
	s string
}

func (f *Foo) EncodeScale(enc *scale.Encoder) (int, error) {
	return scale.EncodeString(enc, f.s)
}

func TestSignAndVerify(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	data := Foo{s: "sign me"}
	pubKey, privKey, err := ed25519.GenerateKey(nil)
	require.NoError(err)

	// Sign
	signed, err := signing.Sign(data, privKey)
	require.NoError(err)
	require.EqualValues(data, *signed.Data())
	require.Equal(signing.Address(pubKey), signed.Signer())

	// Create Signed from a signed data
	signed2, err := signing.NewFromScaleEncodable(*signed.Data(), signed.Signature(), signed.PubKey())
	require.NoError(err)
	require.EqualValues(signed2.Data(), signed.Data())
	require.Equal(signed.ID(), signed2.ID())
}

func TestInvalidSignature(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	data := Foo{s: "sign me"}
	pubKey, _, err := ed25519.GenerateKey(nil)
	require.NoError(err)

	_, err = signing.NewFromScaleEncodable(data, []byte{}, pubKey)
	require.ErrorIs(err, signing.ErrSignatureInvalid)

	_, err = signing.NewFromScaleEncodable(data, []byte{}, []byte{1, 2, 3})
	require.ErrorIs(err, signing.ErrInvalidPubkeyLen)
}

func TestEnvelope(t *testing.T) {
	t.Parallel()
	_, privKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	signed, err := signing.Sign(types.NewTx(1337, types.TxRegister, big.NewInt(10), 1), privKey)
	require.NoError(t, err)

	env := signing.Seal(signed)
	opened, err := signing.Open(env)
	require.NoError(t, err)
	require.Equal(t, signed.Signer(), opened.Signer())
	require.Equal(t, big.NewInt(10), opened.Data().Amount())

	t.Run("tampered value", func(t *testing.T) {
		tampered := env
		tampered.Tx.Value = big.NewInt(11).Bytes()
		_, err := signing.Open(tampered)
		require.ErrorIs(t, err, signing.ErrSignatureInvalid)
	})
}
