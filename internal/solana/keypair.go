package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/mr-tron/base58"
)

// SecretKeyLength is the byte length of a keypair secret (seed || public key).
const SecretKeyLength = ed25519.PrivateKeySize

// Signer signs transaction messages.
type Signer interface {
	PublicKey() PublicKey
	Sign(message []byte) ([]byte, error)
}

// Keypair is an ed25519 signing key.
type Keypair struct {
	private ed25519.PrivateKey
	public  PublicKey
}

// NewKeypair generates a keypair from crypto/rand.
func NewKeypair() (*Keypair, error) {
	return NewKeypairFromReader(rand.Reader)
}

// NewKeypairFromReader generates a keypair from the given entropy source.
func NewKeypairFromReader(r io.Reader) (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	kp := &Keypair{private: priv}
	copy(kp.public[:], pub)
	return kp, nil
}

// KeypairFromSeed derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed length %d, want %d", len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	kp := &Keypair{private: priv}
	copy(kp.public[:], priv.Public().(ed25519.PublicKey))
	return kp, nil
}

// KeypairFromSecretKey loads a 64-byte secret and checks that its public half
// matches the seed.
func KeypairFromSecretKey(secret []byte) (*Keypair, error) {
	if len(secret) != SecretKeyLength {
		return nil, fmt.Errorf("invalid secret key length %d, want %d", len(secret), SecretKeyLength)
	}
	kp, err := KeypairFromSeed(secret[:ed25519.SeedSize])
	if err != nil {
		return nil, err
	}
	for i := 0; i < PublicKeyLength; i++ {
		if kp.public[i] != secret[ed25519.SeedSize+i] {
			return nil, fmt.Errorf("secret key public half does not match its seed")
		}
	}
	return kp, nil
}

// KeypairFromBase58 decodes a base58 64-byte secret.
func KeypairFromBase58(s string) (*Keypair, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode base58 secret: %w", err)
	}
	return KeypairFromSecretKey(raw)
}

// PublicKey returns the address of the keypair.
func (k *Keypair) PublicKey() PublicKey {
	return k.public
}

// Sign signs message with the private key.
func (k *Keypair) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(k.private, message), nil
}

// SecretKey returns a copy of the 64-byte secret.
func (k *Keypair) SecretKey() []byte {
	out := make([]byte, SecretKeyLength)
	copy(out, k.private)
	return out
}

// VerifySignature checks an ed25519 signature against a public key.
func VerifySignature(pk PublicKey, message, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pk[:]), message, sig)
}
