package dbhelper

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

// openTestConnection registers a sqlite-backed connection entry directly,
// standing in for whichever family is under test: only DSN recognition and
// column-type mapping differ per family, and those are covered separately in
// dialect_test.go. The shared statement-lifecycle machinery below is
// dialect-agnostic.
func openTestConnection(t *testing.T, reg *registry.Registry) string {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT, price REAL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO widgets (id, name, price) VALUES (1, 'sprocket', 4.5), (2, 'cog', 9.0)`)
	require.NoError(t, err)

	payload := &connectionPayload{
		db:         db,
		dialect:    DialectOracleFamily,
		state:      stateIdle,
		autoCommit: true,
	}
	entry, err := reg.Create(registry.Kind("conn"), payload, "", nil, releaseConnection)
	require.NoError(t, err)
	return entry.ID
}

func objParams(t *testing.T, fields map[string]any) *modules.Params {
	t.Helper()
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	p, err := modules.NewParamsFromRaw(raw)
	require.NoError(t, err)
	return p
}

func TestStatementLifecycleSelectFetchAll(t *testing.T) {
	reg := registry.New()
	connID := openTestConnection(t, reg)
	ctx := context.Background()

	prepRes, err := prepare(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"sql":           "SELECT id, name FROM widgets ORDER BY id",
	}))
	require.NoError(t, err)
	stmtID := prepRes.(map[string]any)["statement_id"].(string)

	execRes, err := executeStatement(ctx, reg, objParams(t, map[string]any{
		"connection_id": connID,
		"statement_id":  stmtID,
	}))
	require.NoError(t, err)
	colInfo := execRes.(map[string]any)["column_info"].(map[string]any)
	require.Equal(t, 2, colInfo["count"])

	allRes, err := fetchAll(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"statement_id":  stmtID,
	}))
	require.NoError(t, err)
	rows := allRes.(map[string]any)["rows"].([]any)
	require.Len(t, rows, 2)

	_, err = finishStatement(reg, objParams(t, map[string]any{"statement_id": stmtID}))
	require.NoError(t, err)

	// Idempotent: finishing an already-finished statement still succeeds.
	_, err = finishStatement(reg, objParams(t, map[string]any{"statement_id": stmtID}))
	require.NoError(t, err)
}

func TestStatementLifecycleFetchRowOneAtATime(t *testing.T) {
	reg := registry.New()
	connID := openTestConnection(t, reg)
	ctx := context.Background()

	prepRes, err := prepare(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"sql":           "SELECT id FROM widgets ORDER BY id",
	}))
	require.NoError(t, err)
	stmtID := prepRes.(map[string]any)["statement_id"].(string)

	_, err = executeStatement(ctx, reg, objParams(t, map[string]any{
		"connection_id": connID,
		"statement_id":  stmtID,
	}))
	require.NoError(t, err)

	first, err := fetchRow(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"statement_id":  stmtID,
	}))
	require.NoError(t, err)
	require.NotNil(t, first.(map[string]any)["row"])

	second, err := fetchRow(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"statement_id":  stmtID,
	}))
	require.NoError(t, err)
	require.NotNil(t, second.(map[string]any)["row"])

	third, err := fetchRow(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"statement_id":  stmtID,
	}))
	require.NoError(t, err)
	require.Nil(t, third.(map[string]any)["row"])
}

func TestFetchRowBeforeExecuteIsStateError(t *testing.T) {
	reg := registry.New()
	connID := openTestConnection(t, reg)

	prepRes, err := prepare(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"sql":           "SELECT id FROM widgets",
	}))
	require.NoError(t, err)
	stmtID := prepRes.(map[string]any)["statement_id"].(string)

	_, err = fetchRow(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"statement_id":  stmtID,
	}))
	require.Error(t, err)
	require.Equal(t, modules.KindStateError, modules.KindOf(err))
}

func TestExecuteStatementWithPositionalBindValues(t *testing.T) {
	reg := registry.New()
	connID := openTestConnection(t, reg)
	ctx := context.Background()

	prepRes, err := prepare(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"sql":           "SELECT name FROM widgets WHERE id = ?",
	}))
	require.NoError(t, err)
	stmtID := prepRes.(map[string]any)["statement_id"].(string)

	_, err = executeStatement(ctx, reg, objParams(t, map[string]any{
		"connection_id": connID,
		"statement_id":  stmtID,
		"bind_values":   []any{2},
	}))
	require.NoError(t, err)

	row, err := fetchRow(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"statement_id":  stmtID,
	}))
	require.NoError(t, err)
	values := row.(map[string]any)["row"].([]any)
	require.Equal(t, "cog", values[0])
}

func TestExecuteImmediateInsertReturnsRowsAffected(t *testing.T) {
	reg := registry.New()
	connID := openTestConnection(t, reg)
	ctx := context.Background()

	res, err := executeImmediate(ctx, reg, objParams(t, map[string]any{
		"connection_id": connID,
		"sql":           "UPDATE widgets SET price = 5.0 WHERE id = 1",
	}))
	require.NoError(t, err)
	require.EqualValues(t, 1, res.(map[string]any)["rows_affected"])
}

func TestReExecuteDiscardsOpenResultSet(t *testing.T) {
	reg := registry.New()
	connID := openTestConnection(t, reg)
	ctx := context.Background()

	prepRes, err := prepare(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"sql":           "SELECT id FROM widgets ORDER BY id",
	}))
	require.NoError(t, err)
	stmtID := prepRes.(map[string]any)["statement_id"].(string)

	_, err = executeStatement(ctx, reg, objParams(t, map[string]any{
		"connection_id": connID,
		"statement_id":  stmtID,
	}))
	require.NoError(t, err)
	_, err = fetchRow(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"statement_id":  stmtID,
	}))
	require.NoError(t, err)

	// Re-execute before exhausting the first cursor must not panic or leak;
	// the fresh cursor starts over from row one.
	_, err = executeStatement(ctx, reg, objParams(t, map[string]any{
		"connection_id": connID,
		"statement_id":  stmtID,
	}))
	require.NoError(t, err)

	row, err := fetchRow(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"statement_id":  stmtID,
	}))
	require.NoError(t, err)
	values := row.(map[string]any)["row"].([]any)
	require.EqualValues(t, 1, values[0])
}

func TestLooksLikeQuery(t *testing.T) {
	require.True(t, looksLikeQuery("  select * from widgets"))
	require.True(t, looksLikeQuery("SELECT 1"))
	require.False(t, looksLikeQuery("update widgets set price = 1"))
	require.False(t, looksLikeQuery("delete from widgets"))
}

func TestPeekAheadDetectsEmptyResultWithoutConsumingRow(t *testing.T) {
	reg := registry.New()
	connID := openTestConnection(t, reg)
	ctx := context.Background()

	prepRes, err := prepare(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"sql":           "SELECT id FROM widgets WHERE id = 999",
	}))
	require.NoError(t, err)
	stmtID := prepRes.(map[string]any)["statement_id"].(string)

	_, err = executeStatement(ctx, reg, objParams(t, map[string]any{
		"connection_id": connID,
		"statement_id":  stmtID,
	}))
	require.NoError(t, err)

	_, stmt, err := lookupStatement(reg, stmtID)
	require.NoError(t, err)
	require.NoError(t, peekAhead(stmt))
	require.True(t, stmt.peek.isEOF)

	row, err := fetchRow(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"statement_id":  stmtID,
	}))
	require.NoError(t, err)
	require.Nil(t, row.(map[string]any)["row"])
}

func TestFinishStatementClosesOpenCursor(t *testing.T) {
	reg := registry.New()
	connID := openTestConnection(t, reg)
	ctx := context.Background()

	prepRes, err := prepare(reg, objParams(t, map[string]any{
		"connection_id": connID,
		"sql":           "SELECT id FROM widgets",
	}))
	require.NoError(t, err)
	stmtID := prepRes.(map[string]any)["statement_id"].(string)

	_, err = executeStatement(ctx, reg, objParams(t, map[string]any{
		"connection_id": connID,
		"statement_id":  stmtID,
	}))
	require.NoError(t, err)

	_, err = finishStatement(reg, objParams(t, map[string]any{"statement_id": stmtID}))
	require.NoError(t, err)

	_, _, err = lookupStatement(reg, stmtID)
	require.Error(t, err)
}
