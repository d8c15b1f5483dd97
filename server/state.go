package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/eventreg/eventreg/logging"
	"github.com/eventreg/eventreg/signing"
	"github.com/eventreg/eventreg/util"
)

const (
	stateFilename = "state.bin"

	// KeyEnvVar holds a base64 ed25519 private key for the ledger owner.
	KeyEnvVar = "EVENTREG_OWNER_KEY"
)

var ErrKeyMismatch = errors.New("owner key from environment differs from the persisted one")

type state struct {
	PrivKey []byte
}

func saveState(datadir string, s *state) error {
	return util.Persist(filepath.Join(datadir, stateFilename), s)
}

// loadState returns the persisted owner key. Without one it takes the key
// from envKey, or generates a new key if envKey is empty.
func loadState(ctx context.Context, datadir, envKey string) (*state, error) {
	logger := logging.FromContext(ctx)

	var fromEnv ed25519.PrivateKey
	if envKey != "" {
		key, err := ParseKey(envKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", KeyEnvVar, err)
		}
		fromEnv = key
	}

	s := &state{}
	err := util.Load(filepath.Join(datadir, stateFilename), s)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if fromEnv != nil {
			logger.Info("using owner key from environment")
			s.PrivKey = fromEnv
			return s, nil
		}
		_, key, err := ed25519.GenerateKey(nil)
		if err != nil {
			return nil, fmt.Errorf("generating owner key: %w", err)
		}
		logger.Info("generated new owner key")
		s.PrivKey = key
		return s, nil
	case err != nil:
		return nil, err
	}

	if len(s.PrivKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("persisted owner key has %d bytes", len(s.PrivKey))
	}
	if fromEnv != nil && !bytes.Equal(fromEnv, s.PrivKey) {
		return nil, ErrKeyMismatch
	}
	logger.Debug("loaded owner key",
		zap.Stringer("owner", signing.Address(ed25519.PrivateKey(s.PrivKey).Public().(ed25519.PublicKey))),
	)
	return s, nil
}

// ParseKey decodes a base64 ed25519 private key.
func ParseKey(encoded string) (ed25519.PrivateKey, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding key: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	return key, nil
}

// EncodeKey is the inverse of ParseKey.
func EncodeKey(key ed25519.PrivateKey) string {
	return base64.StdEncoding.EncodeToString(key)
}
