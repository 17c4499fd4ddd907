package cipherhelper

import "github.com/helperd/helperd/internal/modules"

// pkcs7Pad pads data to a multiple of blockSize per PKCS#7 (RFC 5652 §6.3).
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs7Unpad reverses pkcs7Pad, rejecting malformed padding rather than
// silently truncating garbage.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, modules.NewError(modules.KindDriverError, "ciphertext is not a multiple of the block size")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, modules.NewError(modules.KindDriverError, "invalid PKCS#7 padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, modules.NewError(modules.KindDriverError, "invalid PKCS#7 padding")
		}
	}
	return data[:len(data)-padLen], nil
}
