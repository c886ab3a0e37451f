// Package crypto はセッションデータの暗号化を提供する。
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// scryptのパラメータ
const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	keyLength    = 32
	sessionSalt  = "fitbit-data-connector/session"
	minSecretLen = 16
)

// ErrCiphertextTooShort は暗号文がnonce長に満たない場合のエラー。
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// SessionCipher はSESSION_SECRETから導出した鍵でAES-256-GCM暗号化を行う。
// 出力形式: [nonce(12) | ciphertext+tag]
type SessionCipher struct {
	aead cipher.AEAD
}

// NewSessionCipher はシークレットからSessionCipherを生成する。
func NewSessionCipher(secret string) (*SessionCipher, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("session secret must be at least %d bytes", minSecretLen)
	}

	key, err := scrypt.Key([]byte(secret), []byte(sessionSalt), scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to derive session key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}

	return &SessionCipher{aead: gcm}, nil
}

// Encrypt は平文を暗号化する。
func (c *SessionCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt は暗号文を復号する。改ざんされている場合はエラーを返す。
func (c *SessionCipher) Decrypt(data []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
