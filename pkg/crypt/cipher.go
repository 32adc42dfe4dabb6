package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// Sentinel errors for cipher operations.
var (
	ErrKeySize    = errors.New("invalid key or iv size")
	ErrCiphertext = errors.New("invalid ciphertext length")
	ErrPadding    = errors.New("invalid padding")
)

// Cipher encrypts and decrypts cache payloads.
type Cipher interface {
	Encrypt(plaintext, key, iv []byte) ([]byte, error)
	Decrypt(ciphertext, key, iv []byte) ([]byte, error)
}

// AESCBC is AES in CBC mode with PKCS#7 padding.
type AESCBC struct{}

var _ Cipher = AESCBC{}

func (AESCBC) Encrypt(plaintext, key, iv []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}

	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	out := make([]byte, len(plaintext)+pad)
	copy(out, plaintext)
	copy(out[len(plaintext):], bytes.Repeat([]byte{byte(pad)}, pad))

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, out)
	return out, nil
}

func (AESCBC) Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCiphertext, len(ciphertext))
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)

	pad := int(out[len(out)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, ErrPadding
	}
	for _, b := range out[len(out)-pad:] {
		if int(b) != pad {
			return nil, ErrPadding
		}
	}
	return out[:len(out)-pad], nil
}

func newBlock(key, iv []byte) (cipher.Block, error) {
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv is %d bytes", ErrKeySize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySize, err)
	}
	return block, nil
}
