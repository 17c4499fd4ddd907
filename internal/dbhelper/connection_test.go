package dbhelper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

func TestBeginTransactionRejectsWhenAlreadyOpen(t *testing.T) {
	reg := registry.New()
	connID := openTestConnection(t, reg)
	ctx := context.Background()

	_, err := beginTransaction(ctx, reg, objParams(t, map[string]any{"connection_id": connID}))
	require.NoError(t, err)

	_, err = beginTransaction(ctx, reg, objParams(t, map[string]any{"connection_id": connID}))
	require.Error(t, err)
	assert.Equal(t, modules.KindStateError, modules.KindOf(err))
}

func TestCommitClearsTransactionAndReturnsIdle(t *testing.T) {
	reg := registry.New()
	connID := openTestConnection(t, reg)
	ctx := context.Background()

	_, err := beginTransaction(ctx, reg, objParams(t, map[string]any{"connection_id": connID}))
	require.NoError(t, err)

	_, err = executeImmediate(ctx, reg, objParams(t, map[string]any{
		"connection_id": connID,
		"sql":           "UPDATE widgets SET price = 1.0 WHERE id = 1",
	}))
	require.NoError(t, err)

	_, err = commitOrRollback(reg, objParams(t, map[string]any{"connection_id": connID}), true)
	require.NoError(t, err)

	_, conn, err := lookupConnection(reg, connID)
	require.NoError(t, err)
	assert.Equal(t, stateIdle, conn.state)
	assert.Nil(t, conn.tx)
}

func TestCommitIsNoOpUnderAutocommit(t *testing.T) {
	reg := registry.New()
	connID := openTestConnection(t, reg)

	res, err := commitOrRollback(reg, objParams(t, map[string]any{"connection_id": connID}), true)
	require.NoError(t, err)
	assert.Equal(t, true, res.(map[string]any)["success"])
}

func TestDisconnectIsIdempotent(t *testing.T) {
	reg := registry.New()
	connID := openTestConnection(t, reg)

	_, err := disconnect(reg, objParams(t, map[string]any{"connection_id": connID}))
	require.NoError(t, err)

	_, err = disconnect(reg, objParams(t, map[string]any{"connection_id": connID}))
	require.NoError(t, err)

	_, _, err = lookupConnection(reg, connID)
	require.Error(t, err)
}

func TestDisconnectEvictsChildStatements(t *testing.T) {
	reg := registry.New()
	connID := openTestConnection(t, reg)

	prepRes, err := prepare(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"sql":           "SELECT id FROM widgets",
	}))
	require.NoError(t, err)
	stmtID := prepRes.(map[string]any)["statement_id"].(string)

	_, err = disconnect(reg, objParams(t, map[string]any{"connection_id": connID}))
	require.NoError(t, err)

	_, _, err = lookupStatement(reg, stmtID)
	require.Error(t, err)
}
