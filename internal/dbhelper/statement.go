package dbhelper

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

// stmtState is one of the states in the
// PREPARED -> EXECUTED -> {STREAMING, EXHAUSTED} -> FINISHED lifecycle.
type stmtState string

const (
	stmtPrepared stmtState = "PREPARED"
	stmtExecuted stmtState = "EXECUTED"
	stmtStreaming stmtState = "STREAMING"
	stmtExhausted stmtState = "EXHAUSTED"
	stmtFinished  stmtState = "FINISHED"
)

// peekedRow stashes a single look-ahead row so fetch_row's emptiness check
// does not consume a row the client still expects to see.
type peekedRow struct {
	values []any
	isEOF  bool
}

// statementPayload is the native handle stored under a stmt_... id.
type statementPayload struct {
	connEntry *registry.Entry
	sqlText   string
	state     stmtState

	rows         *sql.Rows
	columnNames  []string
	columnTypes  []string
	rowsAffected int64

	bindValues []any
	outParams  map[string]outParam

	peek *peekedRow
}

type outParam struct {
	value any
}

// prepare implements prepare(connection_id, sql).
func prepare(reg *registry.Registry, p *modules.Params) (any, error) {
	connID, err := requireConnectionID(p)
	if err != nil {
		return nil, err
	}
	var sqlText string
	if err := p.Bind("sql", 1, true, &sqlText); err != nil {
		return nil, err
	}

	connEntry, conn, err := lookupConnection(reg, connID)
	if err != nil {
		return nil, err
	}

	connEntry.Lock()
	state := conn.state
	connEntry.Unlock()
	if state == stateClosed {
		return nil, modules.NewError(modules.KindStateError, "connection %q is not open", connID)
	}

	payload := &statementPayload{
		connEntry: connEntry,
		sqlText:   sqlText,
		state:     stmtPrepared,
	}

	stmtEntry, err := reg.Create(registry.Kind("stmt"), payload, connID, map[string]any{"sql": sqlText}, releaseStatement(reg))
	if err != nil {
		return nil, modules.Wrap(modules.KindInternal, err)
	}

	return map[string]any{"statement_id": stmtEntry.ID}, nil
}

func releaseStatement(reg *registry.Registry) registry.Releaser {
	return func(payload any) error {
		stmt, ok := payload.(*statementPayload)
		if !ok || stmt == nil {
			return nil
		}
		if stmt.rows != nil {
			err := stmt.rows.Close()
			stmt.rows = nil
			return err
		}
		return nil
	}
}

func lookupStatement(reg *registry.Registry, stmtID string) (*registry.Entry, *statementPayload, error) {
	entry, ok := reg.Get(stmtID, registry.Kind("stmt"))
	if !ok {
		return nil, nil, modules.NewError(modules.KindNotFound, "statement %q is not a live resource", stmtID)
	}
	payload, ok := entry.Payload().(*statementPayload)
	if !ok {
		return nil, nil, modules.NewError(modules.KindInternal, "statement %q has an unexpected payload type", stmtID)
	}
	return entry, payload, nil
}

// executeStatement implements execute_statement.
func executeStatement(ctx context.Context, reg *registry.Registry, p *modules.Params) (any, error) {
	connID, err := requireConnectionID(p)
	if err != nil {
		return nil, err
	}
	var stmtID string
	if err := p.Bind("statement_id", 1, true, &stmtID); err != nil {
		return nil, err
	}

	bindValues, err := effectiveBindValues(p)
	if err != nil {
		return nil, err
	}

	stmtEntry, stmt, err := lookupStatement(reg, stmtID)
	if err != nil {
		return nil, err
	}
	connEntry, conn, err := lookupConnection(reg, connID)
	if err != nil {
		return nil, err
	}

	stmtEntry.Lock()
	defer stmtEntry.Unlock()

	if stmt.state == stmtFinished {
		return nil, modules.NewError(modules.KindStateError, "statement %q has already finished", stmtID)
	}

	// Re-execute discards any open result set and clears the peek buffer
	// On re-execute, any open result set is implicitly discarded.
	if stmt.rows != nil {
		stmt.rows.Close()
		stmt.rows = nil
	}
	stmt.peek = nil
	stmt.columnNames = nil
	stmt.columnTypes = nil
	stmt.bindValues = bindValues

	return runStatement(ctx, stmtEntry, connEntry, stmt, conn)
}

// beginImplicitTransaction starts a *sql.Tx on conn when AutoCommit is false
// and no transaction is open yet, the first mutating statement begins one.
// Queries never trigger it; only INSERT/UPDATE/DELETE/DDL do.
func beginImplicitTransaction(ctx context.Context, connEntry *registry.Entry, conn *connectionPayload, isQuery bool) error {
	if isQuery || conn.autoCommit || conn.tx != nil {
		return nil
	}
	connEntry.Lock()
	defer connEntry.Unlock()
	if conn.tx != nil {
		return nil
	}
	tx, err := conn.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	conn.tx = tx
	conn.state = stateInTxn
	connEntry.Touch()
	return nil
}

func runStatement(ctx context.Context, stmtEntry, connEntry *registry.Entry, stmt *statementPayload, conn *connectionPayload) (any, error) {
	isQuery := looksLikeQuery(stmt.sqlText)

	if err := beginImplicitTransaction(ctx, connEntry, conn, isQuery); err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}

	var execer interface {
		QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
		ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	}
	if conn.tx != nil {
		execer = conn.tx
	} else {
		execer = conn.db
	}

	if isQuery {
		rows, err := execer.QueryContext(ctx, stmt.sqlText, stmt.bindValues...)
		if err != nil {
			return nil, modules.NewError(modules.KindDriverError, "%v", err)
		}
		cols, err := rows.Columns()
		if err != nil {
			rows.Close()
			return nil, modules.Wrap(modules.KindDriverError, err)
		}
		colTypes, err := rows.ColumnTypes()
		if err != nil {
			rows.Close()
			return nil, modules.Wrap(modules.KindDriverError, err)
		}

		stmt.rows = rows
		stmt.columnNames = cols
		stmt.columnTypes = canonicalColumnTypes(colTypes)
		stmt.rowsAffected = -1
		stmtEntry.Touch()

		// Peek once to learn emptiness right away: an empty result
		// set goes straight to EXHAUSTED instead of a STREAMING state whose
		// first fetch_row would just report EOF anyway.
		if err := peekAhead(stmt); err != nil {
			rows.Close()
			stmt.rows = nil
			return nil, modules.Wrap(modules.KindDriverError, err)
		}
		if stmt.peek.isEOF {
			stmt.state = stmtExhausted
		} else {
			stmt.state = stmtStreaming
		}

		return map[string]any{
			"rows_affected": stmt.rowsAffected,
			"column_info": map[string]any{
				"count": len(cols),
				"names": cols,
				"types": stmt.columnTypes,
			},
		}, nil
	}

	result, err := execer.ExecContext(ctx, stmt.sqlText, stmt.bindValues...)
	if err != nil {
		return nil, modules.NewError(modules.KindDriverError, "%v", err)
	}
	affected, _ := result.RowsAffected()
	stmt.rowsAffected = affected
	stmt.state = stmtExecuted
	stmtEntry.Touch()

	return map[string]any{
		"rows_affected": affected,
		"column_info": map[string]any{
			"count": 0,
			"names": []string{},
			"types": []string{},
		},
	}, nil
}

func looksLikeQuery(sqlText string) bool {
	trimmed := strings.TrimSpace(sqlText)
	return len(trimmed) >= 6 && strings.EqualFold(trimmed[:6], "select")
}

// executeImmediate implements execute_immediate: prepare + execute
// + discard cursor in one call.
func executeImmediate(ctx context.Context, reg *registry.Registry, p *modules.Params) (any, error) {
	connID, err := requireConnectionID(p)
	if err != nil {
		return nil, err
	}
	var sqlText string
	if err := p.Bind("sql", 1, true, &sqlText); err != nil {
		return nil, err
	}
	bindValues, err := effectiveBindValues(p)
	if err != nil {
		return nil, err
	}

	connEntry, conn, err := lookupConnection(reg, connID)
	if err != nil {
		return nil, err
	}

	stmt := &statementPayload{sqlText: sqlText, bindValues: bindValues}
	tmpEntry := &registry.Entry{} // scratch entry, never registered or locked by others
	result, err := runStatement(ctx, tmpEntry, connEntry, stmt, conn)
	if err != nil {
		return nil, err
	}
	if stmt.rows != nil {
		stmt.rows.Close()
	}

	m, _ := result.(map[string]any)
	return map[string]any{"rows_affected": m["rows_affected"]}, nil
}

// fetchRow implements fetch_row, draining the peek buffer first if
// non-empty.
func fetchRow(reg *registry.Registry, p *modules.Params) (any, error) {
	connID, err := requireConnectionID(p)
	if err != nil {
		return nil, err
	}
	var stmtID, format string
	if err := p.Bind("statement_id", 1, true, &stmtID); err != nil {
		return nil, err
	}
	if err := p.Bind("format", 2, false, &format); err != nil {
		return nil, err
	}
	if format == "" {
		format = "array"
	}

	stmtEntry, stmt, err := lookupStatement(reg, stmtID)
	if err != nil {
		return nil, err
	}
	if err := checkStatementBelongsTo(stmt, connID); err != nil {
		return nil, err
	}

	stmtEntry.Lock()
	defer stmtEntry.Unlock()

	if stmt.state != stmtStreaming && stmt.state != stmtExhausted {
		return nil, modules.NewError(modules.KindStateError, "fetch_row called before execute on statement %q", stmtID)
	}

	values, eof, err := nextRow(stmt)
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	stmtEntry.Touch()

	if eof {
		stmt.state = stmtExhausted
		return map[string]any{"row": nil}, nil
	}

	return map[string]any{"row": formatRow(stmt.columnNames, values, format)}, nil
}

// fetchAll implements fetch_all, draining every remaining row.
func fetchAll(reg *registry.Registry, p *modules.Params) (any, error) {
	connID, err := requireConnectionID(p)
	if err != nil {
		return nil, err
	}
	var stmtID, format string
	if err := p.Bind("statement_id", 1, true, &stmtID); err != nil {
		return nil, err
	}
	if err := p.Bind("format", 2, false, &format); err != nil {
		return nil, err
	}
	if format == "" {
		format = "array"
	}

	stmtEntry, stmt, err := lookupStatement(reg, stmtID)
	if err != nil {
		return nil, err
	}
	if err := checkStatementBelongsTo(stmt, connID); err != nil {
		return nil, err
	}

	stmtEntry.Lock()
	defer stmtEntry.Unlock()

	if stmt.state != stmtStreaming && stmt.state != stmtExhausted {
		return nil, modules.NewError(modules.KindStateError, "fetch_all called before execute on statement %q", stmtID)
	}

	var out []any
	for {
		values, eof, err := nextRow(stmt)
		if err != nil {
			return nil, modules.Wrap(modules.KindDriverError, err)
		}
		if eof {
			break
		}
		out = append(out, formatRow(stmt.columnNames, values, format))
	}
	stmt.state = stmtExhausted
	stmtEntry.Touch()

	if out == nil {
		out = []any{}
	}
	return map[string]any{"rows": out}, nil
}

// nextRow drains the peek buffer if set, otherwise advances the cursor,
// implementing the peek-buffer semantics.
func nextRow(stmt *statementPayload) (values []any, eof bool, err error) {
	if stmt.peek != nil {
		p := stmt.peek
		stmt.peek = nil
		return p.values, p.isEOF, nil
	}
	return advanceCursor(stmt)
}

func advanceCursor(stmt *statementPayload) ([]any, bool, error) {
	if stmt.rows == nil {
		return nil, true, nil
	}
	if !stmt.rows.Next() {
		if err := stmt.rows.Err(); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}

	values := make([]any, len(stmt.columnNames))
	ptrs := make([]any, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := stmt.rows.Scan(ptrs...); err != nil {
		return nil, false, err
	}
	return values, false, nil
}

// peekAhead is the internal-only look-ahead primitive: advances the
// cursor by one and stashes the row (or EOF) in the peek buffer.
func peekAhead(stmt *statementPayload) error {
	if stmt.peek != nil {
		return nil
	}
	values, eof, err := advanceCursor(stmt)
	if err != nil {
		return err
	}
	stmt.peek = &peekedRow{values: values, isEOF: eof}
	return nil
}

func formatRow(names []string, values []any, format string) any {
	if format == "hash" {
		row := make(map[string]any, len(names))
		for i, name := range names {
			if i < len(values) {
				row[name] = values[i]
			}
		}
		return row
	}
	return values
}

func checkStatementBelongsTo(stmt *statementPayload, connID string) error {
	if stmt.connEntry == nil || stmt.connEntry.ID != connID {
		return modules.NewError(modules.KindInvalidParams, "statement does not belong to connection %q", connID)
	}
	return nil
}

// finishStatement implements finish_statement: closes the cursor if
// open, evicts the statement entry. Idempotent.
func finishStatement(reg *registry.Registry, p *modules.Params) (any, error) {
	var stmtID string
	if err := p.Bind("statement_id", 1, true, &stmtID); err != nil {
		return nil, err
	}
	reg.Destroy(stmtID)
	return map[string]any{"success": true}, nil
}

// effectiveBindValues implements the precedence rule: bind_values wins
// if non-empty, otherwise bind_params' values sorted by key.
func effectiveBindValues(p *modules.Params) ([]any, error) {
	var positional []json.RawMessage
	if err := p.Bind("bind_values", 2, false, &positional); err != nil {
		return nil, err
	}
	if len(positional) > 0 {
		return decodeBindValues(positional)
	}

	var named map[string]namedBindValue
	if err := p.Bind("bind_params", 3, false, &named); err != nil {
		return nil, err
	}
	if len(named) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(named))
	for k := range named {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]any, 0, len(keys))
	for _, k := range keys {
		values = append(values, coerceBindValue(named[k]))
	}
	return values, nil
}
