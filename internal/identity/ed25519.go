package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"

	"github.com/mr-tron/base58"
)

// Ed25519Scheme matches Solana wallets: base58 public keys, 64-byte secret
// keys (seed || public key) and base58 detached signatures.
type Ed25519Scheme struct{}

func (Ed25519Scheme) Name() string { return "solana" }

func (Ed25519Scheme) NewKey() (string, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, err
	}
	return base58.Encode(pub), []byte(priv), nil
}

func (Ed25519Scheme) Sign(secret, message []byte) (string, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return "", ErrWiped
	}
	return base58.Encode(ed25519.Sign(ed25519.PrivateKey(secret), message)), nil
}

func (Ed25519Scheme) Verify(publicKey string, message []byte, signature string) bool {
	pub, err := base58.Decode(publicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
}

// EncodeSecret uses standard base64, the format wallet importers accept.
func (Ed25519Scheme) EncodeSecret(secret []byte) string {
	return base64.StdEncoding.EncodeToString(secret)
}
