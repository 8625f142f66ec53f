package identity

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// EVMScheme produces secp256k1 wallets. Signatures follow EIP-191
// personal_sign with a 27/28 recovery byte, hex encoded.
type EVMScheme struct{}

func (EVMScheme) Name() string { return "evm" }

func (EVMScheme) NewKey() (string, []byte, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", nil, err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), crypto.FromECDSA(key), nil
}

func (EVMScheme) Sign(secret, message []byte) (string, error) {
	key, err := crypto.ToECDSA(secret)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

func (EVMScheme) Verify(publicKey string, message []byte, signature string) bool {
	if !common.IsHexAddress(publicKey) {
		return false
	}
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == common.HexToAddress(publicKey)
}

func (EVMScheme) EncodeSecret(secret []byte) string {
	return hexutil.Encode(secret)
}
