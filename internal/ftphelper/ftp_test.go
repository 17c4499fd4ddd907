package ftphelper

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

func TestConnectRejectsUnreachableHost(t *testing.T) {
	reg := registry.New()
	_, err := connectSession(reg, objParams(t, map[string]any{
		"host":    "127.0.0.1",
		"port":    1,
		"timeout": 1,
	}))
	require.Error(t, err)
	assert.Equal(t, modules.KindDriverError, modules.KindOf(err))
}

func TestOperationsAgainstUnknownSessionAreNotFound(t *testing.T) {
	reg := registry.New()
	missing := map[string]any{"session_id": "session_does-not-exist", "remote_path": "/tmp/x"}

	_, err := uploadFile(reg, objParams(t, map[string]any{
		"session_id": "session_does-not-exist", "remote_path": "/tmp/x", "content_hex": "68",
	}))
	require.Error(t, err)
	assert.Equal(t, modules.KindNotFound, modules.KindOf(err))

	_, err = downloadFile(reg, objParams(t, missing))
	require.Error(t, err)
	assert.Equal(t, modules.KindNotFound, modules.KindOf(err))

	_, err = listDirectory(reg, objParams(t, missing))
	require.Error(t, err)
	assert.Equal(t, modules.KindNotFound, modules.KindOf(err))

	_, err = makeDirectory(reg, objParams(t, missing))
	require.Error(t, err)
	assert.Equal(t, modules.KindNotFound, modules.KindOf(err))

	_, err = removeFile(reg, objParams(t, missing))
	require.Error(t, err)
	assert.Equal(t, modules.KindNotFound, modules.KindOf(err))
}

func TestUploadRejectsInvalidHex(t *testing.T) {
	reg := registry.New()
	entry, err := reg.Create(kindSession, &sessionPayload{}, "", nil, nil)
	require.NoError(t, err)

	_, err = uploadFile(reg, objParams(t, map[string]any{
		"session_id":  entry.ID,
		"remote_path": "/tmp/x",
		"content_hex": "not-hex",
	}))
	require.Error(t, err)
	assert.Equal(t, modules.KindInvalidParams, modules.KindOf(err))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	reg := registry.New()
	released := false
	entry, err := reg.Create(kindSession, &sessionPayload{}, "", nil, func(any) error {
		released = true
		return nil
	})
	require.NoError(t, err)

	_, err = disconnectSession(reg, objParams(t, map[string]any{"session_id": entry.ID}))
	require.NoError(t, err)
	assert.True(t, released)

	_, err = disconnectSession(reg, objParams(t, map[string]any{"session_id": entry.ID}))
	assert.NoError(t, err)
}

func TestModuleExposesAllOperations(t *testing.T) {
	m := New(registry.New())
	assert.Equal(t, "ftp", m.Name())
	for _, name := range []string{"connect", "put", "get", "list", "mkdir", "remove", "disconnect"} {
		_, ok := m.Functions()[name]
		assert.True(t, ok, name)
	}
}
