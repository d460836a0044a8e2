// Package crypto implements the message encryption primitives used by the
// clinic chat: Curve25519 NaCl box with Base64-encoded keys, ciphertext and
// nonces, so payloads travel inside JSON events unchanged.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

const (
	// KeySize is the length in bytes of Curve25519 public and private keys.
	KeySize = 32
	// NonceSize is the length in bytes of a box nonce. A fresh nonce is
	// generated on every Seal and is never reused.
	NonceSize = 24
)

var (
	// ErrInvalidKey reports a key or nonce that is not valid Base64 or has
	// the wrong length.
	ErrInvalidKey = errors.New("crypto: invalid key material")
	// ErrDecryptFailed reports a ciphertext that does not authenticate:
	// tampered data, a wrong key pair or a corrupted nonce.
	ErrDecryptFailed = errors.New("crypto: decryption failed")
)

// KeyPair holds a Base64-encoded Curve25519 key pair. The private half is
// handed to the owning client and never stored server-side.
type KeyPair struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

// Envelope is the wire form of an encrypted payload.
type Envelope struct {
	Ciphertext string `json:"encrypted"`
	Nonce      string `json:"nonce"`
}

// GenerateKeyPair returns a fresh random key pair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate keypair: %w", err)
	}
	return KeyPair{
		PrivateKey: base64.StdEncoding.EncodeToString(priv[:]),
		PublicKey:  base64.StdEncoding.EncodeToString(pub[:]),
	}, nil
}

// Seal encrypts plaintext from the sender to the recipient under a fresh
// random nonce.
func Seal(plaintext string, senderPrivate, recipientPublic string) (Envelope, error) {
	priv, err := decodeKey(senderPrivate)
	if err != nil {
		return Envelope{}, err
	}
	pub, err := decodeKey(recipientPublic)
	if err != nil {
		return Envelope{}, err
	}

	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return Envelope{}, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := box.Seal(nil, []byte(plaintext), &nonce, pub, priv)
	return Envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
		Nonce:      base64.StdEncoding.EncodeToString(nonce[:]),
	}, nil
}

// Open authenticates and decrypts an envelope produced by Seal. Any
// tampering with the ciphertext or nonce, and any key mismatch, yields
// ErrDecryptFailed.
func Open(env Envelope, recipientPrivate, senderPublic string) (string, error) {
	priv, err := decodeKey(recipientPrivate)
	if err != nil {
		return "", err
	}
	pub, err := decodeKey(senderPublic)
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not valid base64", ErrDecryptFailed)
	}
	rawNonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil || len(rawNonce) != NonceSize {
		return "", fmt.Errorf("%w: bad nonce", ErrDecryptFailed)
	}
	var nonce [NonceSize]byte
	copy(nonce[:], rawNonce)

	plaintext, ok := box.Open(nil, sealed, &nonce, pub, priv)
	if !ok {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}

// SealJSON marshals v and encrypts the resulting document.
func SealJSON(v any, senderPrivate, recipientPublic string) (Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Seal(string(data), senderPrivate, recipientPublic)
}

// OpenJSON decrypts an envelope and unmarshals the plaintext into out.
func OpenJSON(env Envelope, recipientPrivate, senderPublic string, out any) error {
	plaintext, err := Open(env, recipientPrivate, senderPublic)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(plaintext), out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

// ValidatePublicKey checks that s is a Base64-encoded key of the right
// length. It does not prove the key lies on the curve; NaCl accepts any
// 32-byte value.
func ValidatePublicKey(s string) error {
	_, err := decodeKey(s)
	return err
}

func decodeKey(s string) (*[KeySize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: not valid base64", ErrInvalidKey)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(raw), KeySize)
	}
	var key [KeySize]byte
	copy(key[:], raw)
	return &key, nil
}
