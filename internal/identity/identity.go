// Package identity produces the ephemeral wallet keypairs that act as sign-in
// credentials for the rewards platform. Each identity owns its signing secret;
// the secret leaves the package only through ExportSecret, which is reserved
// for the credential ledger.
package identity

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// ErrWiped is returned when an identity is used after its secret was erased.
var ErrWiped = errors.New("identity secret already wiped")

// Scheme is a signing algorithm together with the text encodings the platform
// expects for addresses and signatures.
type Scheme interface {
	Name() string
	NewKey() (publicKey string, secret []byte, err error)
	Sign(secret, message []byte) (string, error)
	Verify(publicKey string, message []byte, signature string) bool
	EncodeSecret(secret []byte) string
}

// Identity is one generated wallet.
type Identity struct {
	ID        string
	PublicKey string

	scheme Scheme
	secret []byte
}

// Scheme returns the name of the signing scheme that produced the identity.
func (i *Identity) Scheme() string {
	return i.scheme.Name()
}

// Sign produces a detached signature over message, encoded per scheme.
func (i *Identity) Sign(message []byte) (string, error) {
	if i == nil || len(i.secret) == 0 {
		return "", ErrWiped
	}
	return i.scheme.Sign(i.secret, message)
}

// Verify checks signature against this identity's public key.
func (i *Identity) Verify(message []byte, signature string) bool {
	return i.scheme.Verify(i.PublicKey, message, signature)
}

// ExportSecret returns the encoded private key for the credential ledger.
func (i *Identity) ExportSecret() (string, error) {
	if i == nil || len(i.secret) == 0 {
		return "", ErrWiped
	}
	return i.scheme.EncodeSecret(i.secret), nil
}

// Wipe overwrites the secret in place. The identity can no longer sign.
func (i *Identity) Wipe() {
	if i == nil || len(i.secret) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, i.secret, make([]byte, len(i.secret)))
	i.secret = nil
}

// String never includes key material.
func (i *Identity) String() string {
	return i.PublicKey
}

// LogValue keeps the secret out of structured logs.
func (i *Identity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", i.ID),
		slog.String("scheme", i.Scheme()),
		slog.String("public_key", i.PublicKey),
	)
}

// Generator creates fresh identities for one scheme. It holds no per-call
// state and is safe for concurrent use.
type Generator struct {
	scheme Scheme
}

// NewGenerator returns a generator for the named scheme ("solana" or "evm").
func NewGenerator(name string) (*Generator, error) {
	scheme, err := SchemeByName(name)
	if err != nil {
		return nil, err
	}
	return &Generator{scheme: scheme}, nil
}

// Generate creates a new uniformly random keypair.
func (g *Generator) Generate() (*Identity, error) {
	pub, secret, err := g.scheme.NewKey()
	if err != nil {
		return nil, fmt.Errorf("generate %s key: %w", g.scheme.Name(), err)
	}
	return &Identity{
		ID:        uuid.NewString(),
		PublicKey: pub,
		scheme:    g.scheme,
		secret:    secret,
	}, nil
}

// SchemeByName resolves a scheme name.
func SchemeByName(name string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "solana", "ed25519":
		return Ed25519Scheme{}, nil
	case "evm", "ethereum", "secp256k1":
		return EVMScheme{}, nil
	default:
		return nil, fmt.Errorf("unsupported identity scheme %q", name)
	}
}
