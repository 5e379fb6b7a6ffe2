package signer

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// AddressLength is the number of public key hash bytes kept in an address.
const AddressLength = 20

type KeyManager struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	address    string
}

func (k *KeyManager) Address() string {
	return k.address
}

func (k *KeyManager) PublicKey() []byte {
	return append([]byte(nil), k.publicKey...)
}

func (k *KeyManager) PublicKeyHex() string {
	return hex.EncodeToString(k.publicKey)
}

func (k *KeyManager) PrivateKey() PrivateKey {
	return PrivateKey(hex.EncodeToString(k.privateKey))
}

func (k *KeyManager) Sign(msg []byte) ([]byte, error) {
	if k == nil || k.privateKey == nil {
		return nil, errors.New("key manager is not initialized")
	}
	return ed25519.Sign(k.privateKey, msg), nil
}

// FromPrivateKey parses a 128 character hex private key. The embedded public
// key half must match the one derived from the seed.
func FromPrivateKey(key PrivateKey) (*KeyManager, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(key.Reveal()), "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	if len(clean) != PrivateKeyHexLength {
		return nil, fmt.Errorf("private key must be %d hex characters, got %d", PrivateKeyHexLength, len(clean))
	}
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: invalid hex")
	}
	derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	pub := derived.Public().(ed25519.PublicKey)
	if !bytes.Equal(pub, raw[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("parse private key: public key half does not match seed")
	}
	return &KeyManager{privateKey: derived, publicKey: pub, address: AddressFromPublicKey(pub)}, nil
}

// CreateRandom generates a fresh key from rnd, or crypto/rand when rnd is nil.
func CreateRandom(rnd io.Reader) (*KeyManager, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	pub, priv, err := ed25519.GenerateKey(rnd)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &KeyManager{privateKey: priv, publicKey: pub, address: AddressFromPublicKey(pub)}, nil
}

func AddressFromPublicKey(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:AddressLength])
}

// ResolveAddress derives the address for key without keeping the signer.
func ResolveAddress(key PrivateKey) (string, error) {
	km, err := FromPrivateKey(key)
	if err != nil {
		return "", err
	}
	return km.Address(), nil
}
