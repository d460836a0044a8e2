// Package keys tracks the public half of every participant's key pair and
// hands out the system key pair. Private keys of participants never reach
// this package; the system private key comes from configuration only.
package keys

import (
	"context"
	"errors"
	"fmt"

	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/crypto"
)

// ErrKeyNotFound reports a participant with no registered public key.
var ErrKeyNotFound = errors.New("keys: public key not found")

// Directory stores and resolves participant public keys.
type Directory interface {
	// RegisterPublicKey stores the public key for a participant, replacing
	// any previous one. The key must be valid Base64 of the right length.
	RegisterPublicKey(ctx context.Context, participantID, publicKey string) error

	// PublicKey resolves a participant's registered key, returning
	// ErrKeyNotFound when none exists.
	PublicKey(ctx context.Context, participantID string) (string, error)
}

// SystemKeyPair assembles the clinic-side key pair from configuration
// values. It never generates or persists keys: an unset or malformed pair is
// an error the operator has to fix.
func SystemKeyPair(privateKey, publicKey string) (crypto.KeyPair, error) {
	if privateKey == "" || publicKey == "" {
		return crypto.KeyPair{}, errors.New("keys: SYSTEM_PRIVATE_KEY and SYSTEM_PUBLIC_KEY must be configured")
	}
	if err := crypto.ValidatePublicKey(publicKey); err != nil {
		return crypto.KeyPair{}, fmt.Errorf("keys: system public key: %w", err)
	}
	if err := crypto.ValidatePublicKey(privateKey); err != nil {
		return crypto.KeyPair{}, fmt.Errorf("keys: system private key: %w", err)
	}
	return crypto.KeyPair{PrivateKey: privateKey, PublicKey: publicKey}, nil
}
