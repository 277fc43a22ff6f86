package crypto

//go:generate mockgen -source=interfaces.go -destination=../mock/crypter_mock.go -package=mock

// Crypter owns the account-level payload cryptography of the sync engine.
// It knows nothing about the network, the local store, or the sync protocol.
// Its only job is to protect record payloads with the per-account secret key.
//
// Usage:
//
//	key   = FetchSecretKey()          (once per cycle, before any transaction)
//	blob  = Encrypt(plaintext, key)   (change collector, upload path)
//	plain = Decrypt(blob, key)        (response handler, download path)
type Crypter interface {
	// FetchSecretKey returns the per-account secret key. It fails with
	// ErrNoSecretKey when the account has no key material yet; that error
	// is fatal for the feature's whole sync cycle and is raised before
	// any transaction is opened.
	FetchSecretKey() ([]byte, error)

	// Encrypt seals plaintext with key using AES-256-GCM. The returned
	// blob is nonce ‖ ciphertext; without the key it is random noise and
	// safe to hand to the server.
	Encrypt(plaintext, key []byte) ([]byte, error)

	// Decrypt opens a blob produced by Encrypt. It fails with an error
	// matching ErrDecryptionFailed on any malformed input; when the blob
	// is shorter than the GCM nonce the error additionally matches
	// ErrCiphertextTooShort, which response handlers treat as a
	// per-record skip rather than a fatal batch error.
	Decrypt(blob, key []byte) ([]byte, error)
}
