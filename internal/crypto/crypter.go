package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Sentinel errors returned by the Crypter. Callers match them with
// [errors.Is].
var (
	// ErrNoSecretKey is returned by FetchSecretKey when no account key
	// material has been configured for this device.
	ErrNoSecretKey = errors.New("no account secret key available")

	// ErrDecryptionFailed is returned (possibly wrapped) whenever a
	// payload cannot be decrypted: wrong key, corrupted ciphertext, or a
	// malformed blob.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrCiphertextTooShort is returned wrapped inside ErrDecryptionFailed
	// when the blob is shorter than the GCM nonce. This is the per-record
	// recoverable case: one malformed record must not block the batch.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// accountCrypter is the private implementation of [Crypter]. The secret key
// is derived once from the account passphrase via Argon2id and cached for
// the lifetime of the value.
type accountCrypter struct {
	passphrase string
	salt       []byte

	// Argon2id tuning parameters, adjustable per deployment target.
	argonTime    uint32
	argonMemory  uint32
	argonThreads uint8
	argonKeyLen  uint32

	once sync.Once
	key  []byte
}

// NewAccountCrypter constructs a [Crypter] deriving the secret key from the
// account passphrase and salt with the Argon2id parameters recommended by
// OWASP (2024): 1 iteration, 64 MiB memory, 4 threads, 256-bit key.
func NewAccountCrypter(passphrase string, salt []byte) Crypter {
	return &accountCrypter{
		passphrase:   passphrase,
		salt:         salt,
		argonTime:    1,
		argonMemory:  64 * 1024, // 64 MiB
		argonThreads: 4,
		argonKeyLen:  32, // 256 bits
	}
}

// GenerateSalt reads 16 random bytes from the OS CSPRNG. The salt is not a
// secret; it is stored alongside the account so every device derives the
// same key.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// FetchSecretKey implements [Crypter]. The Argon2id derivation runs once;
// subsequent calls return the cached key.
func (c *accountCrypter) FetchSecretKey() ([]byte, error) {
	if c.passphrase == "" || len(c.salt) == 0 {
		return nil, ErrNoSecretKey
	}
	c.once.Do(func() {
		c.key = argon2.IDKey(
			[]byte(c.passphrase),
			c.salt,
			c.argonTime,
			c.argonMemory,
			c.argonThreads,
			c.argonKeyLen,
		)
	})
	return c.key, nil
}

// Encrypt implements [Crypter]. A random 12-byte nonce is prepended to the
// ciphertext so the decryption side can locate it: blob = nonce ‖ ciphertext.
func (c *accountCrypter) Encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ciphertext...), nil
}

// Decrypt implements [Crypter]. It splits the nonce out of the blob,
// decrypts, and verifies the auth tag. An auth-tag mismatch almost always
// means the device holds a wrong or rotated account key.
func (c *accountCrypter) Decrypt(blob, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(blob) < nonceSize {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, ErrCiphertextTooShort)
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
