package keys

import (
	"context"
	"errors"
	"fmt"

	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/cache/port"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/crypto"
)

const keyPrefix = "chat:pubkey:"

// CacheDirectory keeps public keys in the shared cache (redis in
// production). Keys are stored without TTL; a participant re-registering
// overwrites in place.
type CacheDirectory struct {
	cache port.Cache
}

var _ Directory = (*CacheDirectory)(nil)

func NewCacheDirectory(cache port.Cache) *CacheDirectory {
	return &CacheDirectory{cache: cache}
}

func (d *CacheDirectory) RegisterPublicKey(ctx context.Context, participantID, publicKey string) error {
	if participantID == "" {
		return errors.New("keys: participant id is required")
	}
	if err := crypto.ValidatePublicKey(publicKey); err != nil {
		return err
	}
	if err := d.cache.Set(ctx, keyPrefix+participantID, publicKey, 0); err != nil {
		return fmt.Errorf("keys: store public key: %w", err)
	}
	return nil
}

func (d *CacheDirectory) PublicKey(ctx context.Context, participantID string) (string, error) {
	val, err := d.cache.Get(ctx, keyPrefix+participantID)
	if errors.Is(err, port.ErrMiss) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keys: fetch public key: %w", err)
	}
	return val, nil
}
