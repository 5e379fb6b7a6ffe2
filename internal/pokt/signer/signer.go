package signer

import "log/slog"

// PrivateKeyHexLength is the length of a hex-encoded ed25519 private key
// (32 byte seed followed by the 32 byte public key).
const PrivateKeyHexLength = 128

const redacted = "[REDACTED]"

// PrivateKey is a hex-encoded app private key. It never prints its value.
type PrivateKey string

func (k PrivateKey) String() string { return redacted }

func (k PrivateKey) GoString() string { return redacted }

func (k PrivateKey) LogValue() slog.Value { return slog.StringValue(redacted) }

// Reveal returns the raw hex. Only key files and the signer may call it.
func (k PrivateKey) Reveal() string { return string(k) }

type Signer interface {
	Address() string
	PublicKey() []byte
	Sign(msg []byte) ([]byte, error)
}
