package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/credlens/credlens/internal/kv"
)

const (
	// KeySize is the size in bytes of the feedback encryption key.
	KeySize = 32

	// KeyringService is the service name in the OS keychain.
	KeyringService = "CredLens"

	// KeyringKeyItem is the keychain item holding the feedback key.
	KeyringKeyItem = "feedback-encryption-key"

	// kvKeyName is the fallback location in the local KV tier when no OS
	// keychain is available (headless hosts, CI).
	kvKeyName = "secrets/feedback-key"

	// blobVersion is prepended to every encrypted blob and bound into the
	// AEAD as additional authenticated data, so tampering with it fails
	// authentication.
	blobVersion byte = 0x01
)

// blobOverhead is the fixed byte overhead per encrypted blob:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const blobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// Cipher encrypts and decrypts feedback free text with XChaCha20-Poly1305
// under a key generated once and persisted in the OS keychain (or, failing
// that, the local KV tier).
type Cipher struct {
	key []byte
}

// NewCipher builds a Cipher from an externally supplied 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("feedback key is %d bytes, want %d", len(key), KeySize)
	}
	return &Cipher{key: key}, nil
}

// Load obtains the feedback encryption key, generating and persisting one
// on first use. Lookup order: OS keychain, local KV tier, fresh key. A
// fresh key is written back to whichever location accepted it first.
// Returns an error only when no key can be obtained or persisted anywhere;
// callers then store feedback without its free text rather than in
// plaintext.
func Load(store *kv.Store, logger *logrus.Logger) (*Cipher, error) {
	if hexKey, err := keyring.Get(KeyringService, KeyringKeyItem); err == nil && hexKey != "" {
		key, err := hex.DecodeString(hexKey)
		if err == nil && len(key) == KeySize {
			return &Cipher{key: key}, nil
		}
		logger.Warn("keychain holds malformed feedback key, regenerating")
	} else if err != nil && err != keyring.ErrNotFound {
		logger.WithError(err).Debug("OS keychain unavailable, trying kv fallback")
	}

	if data, err := store.Get(kv.TierLocal, kvKeyName); err == nil && len(data) == KeySize {
		return &Cipher{key: data}, nil
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate feedback key: %w", err)
	}

	if err := keyring.Set(KeyringService, KeyringKeyItem, hex.EncodeToString(key)); err == nil {
		logger.Info("feedback encryption key generated and stored in OS keychain")
		return &Cipher{key: key}, nil
	}

	if err := store.Set(kv.TierLocal, kvKeyName, key); err != nil {
		return nil, fmt.Errorf("persist feedback key: %w", err)
	}
	logger.Info("feedback encryption key generated and stored in local kv tier")
	return &Cipher{key: key}, nil
}

// Encrypt seals plaintext into the blob format:
//
//	[version: 1 byte] [nonce: 24 bytes, random] [ciphertext+tag]
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	output := make([]byte, 1+chacha20poly1305.NonceSizeX, blobOverhead+len(plaintext))
	output[0] = blobVersion
	copy(output[1:], nonce[:])

	return aead.Seal(output, nonce[:], plaintext, []byte{blobVersion}), nil
}

// Decrypt opens a blob produced by Encrypt. Fails on truncation, an
// unknown version byte, a wrong key, or tampered ciphertext.
func (c *Cipher) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < blobOverhead {
		return nil, fmt.Errorf("encrypted blob is %d bytes, minimum is %d", len(blob), blobOverhead)
	}
	if blob[0] != blobVersion {
		return nil, fmt.Errorf("encrypted blob version %d is not supported", blob[0])
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := blob[1+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte{blob[0]})
	if err != nil {
		return nil, fmt.Errorf("AEAD decryption failed: %w", err)
	}
	return plaintext, nil
}
