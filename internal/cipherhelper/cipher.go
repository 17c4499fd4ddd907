// Package cipherhelper implements the "crypto" helper module: legacy
// symmetric cipher instances backed by golang.org/x/crypto/blowfish and the
// standard library's AES/3DES block ciphers.
package cipherhelper

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/blowfish"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

// Algorithm is one of the symmetric ciphers a client may request by name.
type Algorithm string

const (
	AlgorithmBlowfish Algorithm = "Blowfish"
	AlgorithmAES      Algorithm = "AES"
	AlgorithmDES3     Algorithm = "DES3"
)

// cipherPayload is the native handle stored under a cipher_... id: a
// constructed block.Cipher plus the algorithm name for metadata/reporting.
// CBC is the mode throughout, matching the legacy Crypt::CBC-style contract
// this helper stands in for: each encrypt call generates a fresh IV and
// prepends it to the ciphertext; decrypt reads the IV back off the front.
type cipherPayload struct {
	algorithm Algorithm
	block     cipher.Block
}

// newCipher implements crypto.new({key, cipher}): constructs a block cipher
// from the given algorithm name and key, returning {cipher_id}.
func newCipher(reg *registry.Registry, p *modules.Params) (any, error) {
	var key, algoParam string
	if err := p.Bind("key", 0, true, &key); err != nil {
		return nil, err
	}
	if err := p.Bind("cipher", 1, false, &algoParam); err != nil {
		return nil, err
	}
	if algoParam == "" {
		algoParam = string(AlgorithmBlowfish)
	}
	algorithm := Algorithm(algoParam)

	block, err := newBlockCipher(algorithm, []byte(key))
	if err != nil {
		return nil, err
	}

	entry, err := reg.Create(registry.Kind("cipher"), &cipherPayload{algorithm: algorithm, block: block}, "", map[string]any{
		"algorithm": string(algorithm),
	}, nil)
	if err != nil {
		return nil, modules.Wrap(modules.KindInternal, err)
	}

	return map[string]any{"cipher_id": entry.ID}, nil
}

// newBlockCipher builds the cipher.Block for the given algorithm. AES and
// DES3 keys are always derived via sha256 and truncated to the required
// length (even a key that already has that length is hashed), the way legacy CBC wrapper libraries
// (Crypt::CBC and friends) hash an arbitrary passphrase down to a key --
// this lets a caller pass a human-chosen passphrase like "MySecretKey123"
// for AES/DES3 as well as Blowfish, which tolerates any key length directly.
func newBlockCipher(algorithm Algorithm, key []byte) (cipher.Block, error) {
	switch algorithm {
	case AlgorithmBlowfish:
		block, err := blowfish.NewCipher(key)
		if err != nil {
			return nil, modules.NewError(modules.KindInvalidParams, "blowfish key: %v", err)
		}
		return block, nil

	case AlgorithmAES:
		block, err := aes.NewCipher(fitKey(key, 32))
		if err != nil {
			return nil, modules.NewError(modules.KindInvalidParams, "aes key: %v", err)
		}
		return block, nil

	case AlgorithmDES3:
		block, err := des.NewTripleDESCipher(fitKey(key, 24))
		if err != nil {
			return nil, modules.NewError(modules.KindInvalidParams, "des3 key: %v", err)
		}
		return block, nil

	default:
		return nil, modules.NewError(modules.KindInvalidParams, "unrecognized cipher algorithm %q", algorithm)
	}
}

// fitKey derives an exactly-n-byte key from an arbitrary-length passphrase.
func fitKey(key []byte, n int) []byte {
	sum := sha256.Sum256(key)
	if n <= len(sum) {
		return sum[:n]
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		out = append(out, sum[:]...)
	}
	return out[:n]
}

func lookupCipher(reg *registry.Registry, cipherID string) (*registry.Entry, *cipherPayload, error) {
	entry, ok := reg.Get(cipherID, registry.Kind("cipher"))
	if !ok {
		return nil, nil, modules.NewError(modules.KindNotFound, "cipher %q is not a live resource", cipherID)
	}
	payload, ok := entry.Payload().(*cipherPayload)
	if !ok {
		return nil, nil, modules.NewError(modules.KindInternal, "cipher %q has an unexpected payload type", cipherID)
	}
	return entry, payload, nil
}

// encryptCipher implements crypto.encrypt({cipher_id, plaintext_hex}):
// hex-decodes the plaintext, PKCS#7-pads it to the block size, CBC-encrypts
// under a fresh random IV, and returns {encrypted: hex(iv || ciphertext)}.
func encryptCipher(reg *registry.Registry, p *modules.Params) (any, error) {
	var cipherID, plaintextHex string
	if err := p.Bind("cipher_id", 0, true, &cipherID); err != nil {
		return nil, err
	}
	if err := p.Bind("plaintext_hex", 1, true, &plaintextHex); err != nil {
		return nil, err
	}

	entry, ciph, err := lookupCipher(reg, cipherID)
	if err != nil {
		return nil, err
	}
	plaintext, err := hex.DecodeString(plaintextHex)
	if err != nil {
		return nil, modules.NewError(modules.KindInvalidParams, "plaintext_hex: %v", err)
	}

	entry.Lock()
	defer entry.Unlock()

	blockSize := ciph.block.BlockSize()
	iv := make([]byte, blockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, modules.Wrap(modules.KindInternal, err)
	}

	padded := pkcs7Pad(plaintext, blockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(ciph.block, iv).CryptBlocks(ciphertext, padded)
	entry.Touch()

	out := append(append([]byte{}, iv...), ciphertext...)
	return map[string]any{"encrypted": hex.EncodeToString(out)}, nil
}

// decryptCipher implements crypto.decrypt({cipher_id, hex_ciphertext}):
// reverses encryptCipher, returning {decrypted_hex}.
func decryptCipher(reg *registry.Registry, p *modules.Params) (any, error) {
	var cipherID, hexCiphertext string
	if err := p.Bind("cipher_id", 0, true, &cipherID); err != nil {
		return nil, err
	}
	if err := p.Bind("hex_ciphertext", 1, true, &hexCiphertext); err != nil {
		return nil, err
	}

	entry, ciph, err := lookupCipher(reg, cipherID)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(hexCiphertext)
	if err != nil {
		return nil, modules.NewError(modules.KindInvalidParams, "hex_ciphertext: %v", err)
	}

	entry.Lock()
	defer entry.Unlock()

	blockSize := ciph.block.BlockSize()
	if len(raw) < blockSize || (len(raw)-blockSize)%blockSize != 0 {
		return nil, modules.NewError(modules.KindInvalidParams, "hex_ciphertext is not a valid IV-prefixed ciphertext for this cipher's block size")
	}
	iv, body := raw[:blockSize], raw[blockSize:]

	plaintext := make([]byte, len(body))
	cipher.NewCBCDecrypter(ciph.block, iv).CryptBlocks(plaintext, body)
	entry.Touch()

	unpadded, err := pkcs7Unpad(plaintext, blockSize)
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}

	return map[string]any{"decrypted_hex": hex.EncodeToString(unpadded)}, nil
}

// cleanupCipher implements crypto.cleanup_cipher({cipher_id}): idempotent
// resource release, no native teardown beyond dropping the registry entry.
func cleanupCipher(reg *registry.Registry, p *modules.Params) (any, error) {
	var cipherID string
	if err := p.Bind("cipher_id", 0, true, &cipherID); err != nil {
		return nil, err
	}
	reg.Destroy(cipherID)
	return map[string]any{"success": true}, nil
}
