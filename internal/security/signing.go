package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// GenerateKeyPair creates a new ed25519 key pair
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// SaveKeyPair writes both keys as hex files
func SaveKeyPair(pub ed25519.PublicKey, priv ed25519.PrivateKey, pubPath, privPath string) error {
	if err := os.WriteFile(pubPath, []byte(hex.EncodeToString(pub)), 0644); err != nil {
		return err
	}
	return os.WriteFile(privPath, []byte(hex.EncodeToString(priv)), 0600)
}

// LoadPrivateKey loads an ed25519 private key from a hex-encoded file
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	keyBytes, err := readHex(path)
	if err != nil {
		return nil, err
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return ed25519.PrivateKey(keyBytes), nil
}

// LoadPublicKey loads an ed25519 public key from a hex-encoded file
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	keyBytes, err := readHex(path)
	if err != nil {
		return nil, err
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return nil, errors.New("invalid public key size")
	}
	return ed25519.PublicKey(keyBytes), nil
}

func readHex(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(strings.TrimSpace(string(data)))
}

// VerifySignature checks a hex signature of data against pub
func VerifySignature(pub ed25519.PublicKey, data []byte, sigHex string) (bool, error) {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, data, sig), nil
}

// VerifySignatureFromHex is VerifySignature with a hex-encoded public key
func VerifySignatureFromHex(pubHex string, data []byte, sigHex string) (bool, error) {
	pubBytes, err := hex.DecodeString(pubHex)
	if err != nil {
		return false, err
	}
	if len(pubBytes) != ed25519.PublicKeySize {
		return false, errors.New("invalid public key size")
	}
	return VerifySignature(ed25519.PublicKey(pubBytes), data, sigHex)
}

// Signer signs ledger blocks with one runner key
type Signer struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func NewSigner(pub ed25519.PublicKey, priv ed25519.PrivateKey) *Signer {
	return &Signer{pub: pub, priv: priv}
}

// LoadOrCreateSigner reads runner.pub/runner.priv from dir, generating them on
// first use. created reports whether a new pair was written.
func LoadOrCreateSigner(dir string) (s *Signer, created bool, err error) {
	pubPath := filepath.Join(dir, "runner.pub")
	privPath := filepath.Join(dir, "runner.priv")

	if _, err := os.Stat(privPath); os.IsNotExist(err) {
		pub, priv, err := GenerateKeyPair()
		if err != nil {
			return nil, false, err
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, false, err
		}
		if err := SaveKeyPair(pub, priv, pubPath, privPath); err != nil {
			return nil, false, err
		}
		return NewSigner(pub, priv), true, nil
	}

	priv, err := LoadPrivateKey(privPath)
	if err != nil {
		return nil, false, err
	}
	pub, err := LoadPublicKey(pubPath)
	if err != nil {
		return nil, false, err
	}
	if !pub.Equal(priv.Public()) {
		return nil, false, errors.New("runner.pub does not match runner.priv")
	}
	return NewSigner(pub, priv), false, nil
}

// Sign returns the hex signature of data
func (s *Signer) Sign(data []byte) string {
	return hex.EncodeToString(ed25519.Sign(s.priv, data))
}

func (s *Signer) PublicHex() string {
	return hex.EncodeToString(s.pub)
}
