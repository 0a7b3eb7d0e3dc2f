// Package crypto loads the private keys used to sign upstream API requests,
// optionally stored on disk encrypted under a password.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

// Key file parameters. Changing any of them requires a new keyFileVersion.
const (
	keyFileVersion = 1
	kdfRounds      = 480_000
	kdfSaltBytes   = 16
	aes256KeyBytes = 32
)

// ErrWrongPassword is returned when an encrypted key file fails to
// authenticate under the given password.
var ErrWrongPassword = errors.New("crypto: wrong password or corrupted key file")

// sealedKey is the JSON key file. Byte fields are base64 on disk.
type sealedKey struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// KeyConfig names where a signing key lives.
type KeyConfig struct {
	// PEMPath is a plain PEM file. It wins over EncryptedKeyPath.
	PEMPath string
	// EncryptedKeyPath is a key file written by EncryptKey, opened with
	// KeyPassword.
	EncryptedKeyPath string
	KeyPassword      string
}

// Configured reports whether any key source is set.
func (c KeyConfig) Configured() bool {
	return c.PEMPath != "" || c.EncryptedKeyPath != ""
}

// EncryptKey seals key material under password (PBKDF2-HMAC-SHA256, then
// AES-256-GCM) and returns the key file contents.
func EncryptKey(plaintext []byte, password string) ([]byte, error) {
	switch {
	case password == "":
		return nil, errors.New("crypto: encrypt: empty password")
	case len(plaintext) == 0:
		return nil, errors.New("crypto: encrypt: empty key material")
	}

	sk := sealedKey{Version: keyFileVersion, Salt: make([]byte, kdfSaltBytes)}
	if _, err := rand.Read(sk.Salt); err != nil {
		return nil, fmt.Errorf("crypto: encrypt: salt: %w", err)
	}
	aead, err := deriveAEAD(password, sk.Salt)
	if err != nil {
		return nil, err
	}
	sk.Nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(sk.Nonce); err != nil {
		return nil, fmt.Errorf("crypto: encrypt: nonce: %w", err)
	}
	sk.Ciphertext = aead.Seal(nil, sk.Nonce, plaintext, nil)

	return json.MarshalIndent(sk, "", "  ")
}

// DecryptKey opens a key file produced by EncryptKey. A bad password
// returns an error wrapping ErrWrongPassword.
func DecryptKey(keyFile []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: decrypt: empty password")
	}

	var sk sealedKey
	if err := json.Unmarshal(keyFile, &sk); err != nil {
		return nil, fmt.Errorf("crypto: decrypt: parse key file: %w", err)
	}
	if sk.Version != keyFileVersion {
		return nil, fmt.Errorf("crypto: decrypt: key file version %d not supported", sk.Version)
	}

	aead, err := deriveAEAD(password, sk.Salt)
	if err != nil {
		return nil, err
	}
	if len(sk.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("crypto: decrypt: nonce has %d bytes, want %d", len(sk.Nonce), aead.NonceSize())
	}
	plaintext, err := aead.Open(nil, sk.Nonce, sk.Ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

func deriveAEAD(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, kdfRounds, aes256KeyBytes, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return aead, nil
}

// LoadKey returns the PEM bytes named by cfg, decrypting them when they come
// from an encrypted key file. The result must contain a PEM block.
func LoadKey(cfg KeyConfig) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case cfg.PEMPath != "":
		if data, err = os.ReadFile(cfg.PEMPath); err != nil {
			return nil, fmt.Errorf("crypto: load key: %w", err)
		}
	case cfg.EncryptedKeyPath != "":
		raw, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: load key: %w", err)
		}
		if data, err = DecryptKey(raw, cfg.KeyPassword); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("crypto: load key: no key source configured")
	}

	if block, _ := pem.Decode(data); block == nil {
		return nil, errors.New("crypto: load key: no PEM block found")
	}
	return data, nil
}
