package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

var (
	errEmptyPlaintext   = errors.New("aes-cbc: empty plaintext")
	errEmptyCiphertext  = errors.New("aes-cbc: empty ciphertext")
	errBadBlockSize     = errors.New("aes-cbc: ciphertext is not a multiple of the block size")
	errBadPadding       = errors.New("aes-cbc: invalid PKCS#7 padding")
)

// aesCBCEncrypt applies PKCS#7 padding and AES-256-CBC with the given
// 32-byte key and 16-byte IV.
func aesCBCEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, errEmptyPlaintext
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// aesCBCDecrypt is the exact inverse of aesCBCEncrypt.
func aesCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, errEmptyCiphertext
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext)%block.BlockSize() != 0 {
		return nil, errBadBlockSize
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, block.BlockSize())
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := len(data)
	if n == 0 || n%blockSize != 0 {
		return nil, errBadPadding
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > blockSize || padLen > n {
		return nil, errBadPadding
	}
	if !bytes.Equal(data[n-padLen:], bytes.Repeat([]byte{byte(padLen)}, padLen)) {
		return nil, errBadPadding
	}
	return data[:n-padLen], nil
}
