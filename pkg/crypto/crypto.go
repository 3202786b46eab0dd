package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

var encryptionKey []byte

// SetEncryptionKey sets the global encryption key used for credential blobs.
// The key is padded or truncated to 32 bytes (AES-256).
func SetEncryptionKey(key string) error {
	finalKey := make([]byte, 32)
	copy(finalKey, []byte(key))
	encryptionKey = finalKey
	return nil
}

// Encrypt seals an opaque blob with AES-GCM. The nonce is prepended to the
// ciphertext. With no key configured the blob passes through unchanged.
func Encrypt(plain []byte) ([]byte, error) {
	if len(encryptionKey) == 0 {
		return plain, nil
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plain, nil), nil
}

// Decrypt opens a blob sealed by Encrypt.
func Decrypt(sealed []byte) ([]byte, error) {
	if len(encryptionKey) == 0 {
		return sealed, nil
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.New("ciphertext shorter than nonce")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
