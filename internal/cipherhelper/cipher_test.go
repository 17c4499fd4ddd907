package cipherhelper

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

func objParams(t *testing.T, fields map[string]any) *modules.Params {
	t.Helper()
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	p, err := modules.NewParamsFromRaw(raw)
	require.NoError(t, err)
	return p
}

// TestCipherRoundTripBlowfish encrypts then decrypts through a Blowfish
// cipher instance and checks the plaintext survives the round trip.
func TestCipherRoundTripBlowfish(t *testing.T) {
	reg := registry.New()

	newRes, err := newCipher(reg, objParams(t, map[string]any{
		"key":    "MySecretKey123",
		"cipher": "Blowfish",
	}))
	require.NoError(t, err)
	cipherID := newRes.(map[string]any)["cipher_id"].(string)

	encRes, err := encryptCipher(reg, objParams(t, map[string]any{
		"cipher_id":     cipherID,
		"plaintext_hex": "48656c6c6f",
	}))
	require.NoError(t, err)
	encryptedHex := encRes.(map[string]any)["encrypted"].(string)
	require.NotEmpty(t, encryptedHex)

	decRes, err := decryptCipher(reg, objParams(t, map[string]any{
		"cipher_id":      cipherID,
		"hex_ciphertext": encryptedHex,
	}))
	require.NoError(t, err)
	assert.Equal(t, "48656c6c6f", decRes.(map[string]any)["decrypted_hex"])

	_, err = cleanupCipher(reg, objParams(t, map[string]any{"cipher_id": cipherID}))
	require.NoError(t, err)

	// Idempotent release.
	_, err = cleanupCipher(reg, objParams(t, map[string]any{"cipher_id": cipherID}))
	require.NoError(t, err)
}

func TestCipherRoundTripAESAndDES3(t *testing.T) {
	for _, algo := range []string{"AES", "DES3"} {
		reg := registry.New()
		newRes, err := newCipher(reg, objParams(t, map[string]any{
			"key":    "a-passphrase-of-arbitrary-length",
			"cipher": algo,
		}))
		require.NoError(t, err, algo)
		cipherID := newRes.(map[string]any)["cipher_id"].(string)

		encRes, err := encryptCipher(reg, objParams(t, map[string]any{
			"cipher_id":     cipherID,
			"plaintext_hex": "deadbeef",
		}))
		require.NoError(t, err, algo)

		decRes, err := decryptCipher(reg, objParams(t, map[string]any{
			"cipher_id":      cipherID,
			"hex_ciphertext": encRes.(map[string]any)["encrypted"],
		}))
		require.NoError(t, err, algo)
		assert.Equal(t, "deadbeef", decRes.(map[string]any)["decrypted_hex"], algo)
	}
}

func TestEncryptProducesDifferentCiphertextEachCall(t *testing.T) {
	reg := registry.New()
	newRes, err := newCipher(reg, objParams(t, map[string]any{"key": "k", "cipher": "Blowfish"}))
	require.NoError(t, err)
	cipherID := newRes.(map[string]any)["cipher_id"].(string)

	first, err := encryptCipher(reg, objParams(t, map[string]any{"cipher_id": cipherID, "plaintext_hex": "00"}))
	require.NoError(t, err)
	second, err := encryptCipher(reg, objParams(t, map[string]any{"cipher_id": cipherID, "plaintext_hex": "00"}))
	require.NoError(t, err)

	assert.NotEqual(t, first.(map[string]any)["encrypted"], second.(map[string]any)["encrypted"])
}

func TestNewCipherDefaultsToBlowfish(t *testing.T) {
	reg := registry.New()
	res, err := newCipher(reg, objParams(t, map[string]any{"key": "k"}))
	require.NoError(t, err)
	cipherID := res.(map[string]any)["cipher_id"].(string)

	_, payload, err := lookupCipher(reg, cipherID)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmBlowfish, payload.algorithm)
}

func TestNewCipherRejectsUnknownAlgorithm(t *testing.T) {
	reg := registry.New()
	_, err := newCipher(reg, objParams(t, map[string]any{"key": "k", "cipher": "ROT13"}))
	require.Error(t, err)
	assert.Equal(t, modules.KindInvalidParams, modules.KindOf(err))
}

func TestDecryptRejectsTruncatedCiphertext(t *testing.T) {
	reg := registry.New()
	newRes, err := newCipher(reg, objParams(t, map[string]any{"key": "k", "cipher": "Blowfish"}))
	require.NoError(t, err)
	cipherID := newRes.(map[string]any)["cipher_id"].(string)

	_, err = decryptCipher(reg, objParams(t, map[string]any{
		"cipher_id":      cipherID,
		"hex_ciphertext": "ab",
	}))
	require.Error(t, err)
}
