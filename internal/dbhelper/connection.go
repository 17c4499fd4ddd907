package dbhelper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

// connState is one of the states in the
// INIT -> CONNECTING -> OPEN -> {IN_TXN, IDLE} -> CLOSED lifecycle.
type connState string

const (
	stateInit       connState = "INIT"
	stateConnecting connState = "CONNECTING"
	stateOpen       connState = "OPEN"
	stateInTxn      connState = "IN_TXN"
	stateIdle       connState = "IDLE"
	stateClosed     connState = "CLOSED"
)

// connectionPayload is the native handle stored in the resource registry
// under a conn_... id.
type connectionPayload struct {
	db      *sql.DB
	tx      *sql.Tx
	dialect Dialect

	state      connState
	dsn        string
	username   string
	authMode   AuthMode
	autoCommit bool
	raiseError bool
	printError bool
}

func connectOptions(p *modules.Params) (autoCommit, raiseError, printError bool, err error) {
	autoCommit, raiseError, printError = true, false, true

	var opts struct {
		AutoCommit *bool `json:"AutoCommit"`
		RaiseError *bool `json:"RaiseError"`
		PrintError *bool `json:"PrintError"`
	}
	if bindErr := p.Bind("options", 3, false, &opts); bindErr != nil {
		return false, false, false, bindErr
	}
	if opts.AutoCommit != nil {
		autoCommit = *opts.AutoCommit
	}
	if opts.RaiseError != nil {
		raiseError = *opts.RaiseError
	}
	if opts.PrintError != nil {
		printError = *opts.PrintError
	}
	return autoCommit, raiseError, printError, nil
}

// connect implements connect(dsn, username, password, options, db_type,
// auth_mode='auto').
func connect(ctx context.Context, reg *registry.Registry, p *modules.Params) (any, error) {
	var dsn, username, password, authModeParam string
	if err := p.Bind("dsn", 0, true, &dsn); err != nil {
		return nil, err
	}
	if err := p.Bind("username", 1, false, &username); err != nil {
		return nil, err
	}
	if err := p.Bind("password", 2, false, &password); err != nil {
		return nil, err
	}
	if err := p.Bind("auth_mode", 5, false, &authModeParam); err != nil {
		return nil, err
	}

	autoCommit, raiseError, printError, err := connectOptions(p)
	if err != nil {
		return nil, err
	}

	dialect, err := recognizeDialect(dsn)
	if err != nil {
		return nil, err
	}

	authMode, err := resolveAuthMode(authModeParam, username, password)
	if err != nil {
		return nil, err
	}

	db, err := openDB(dialect, dsn, username, password)
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, modules.NewError(modules.KindDriverError, "connecting to %s: %v", dialect, err)
	}

	payload := &connectionPayload{
		db:         db,
		dialect:    dialect,
		state:      stateIdle,
		dsn:        dsn,
		username:   username,
		authMode:   authMode,
		autoCommit: autoCommit,
		raiseError: raiseError,
		printError: printError,
	}

	entry, err := reg.Create(registry.Kind("conn"), payload, "", map[string]any{
		"dsn":        dsn,
		"username":   username,
		"auth_mode":  string(authMode),
		"autocommit": autoCommit,
		"raise_error": raiseError,
		"print_error": printError,
	}, releaseConnection)
	if err != nil {
		db.Close()
		return nil, modules.Wrap(modules.KindInternal, err)
	}

	return map[string]any{
		"connection_id": entry.ID,
		"connected":     true,
		"auth_mode":     string(authMode),
	}, nil
}

// releaseConnection is the registry Releaser for the "conn" kind: rolls back
// any open transaction and closes the native connection.
func releaseConnection(payload any) error {
	conn, ok := payload.(*connectionPayload)
	if !ok || conn == nil {
		return nil
	}
	if conn.tx != nil {
		conn.tx.Rollback()
		conn.tx = nil
	}
	if conn.db != nil {
		return conn.db.Close()
	}
	return nil
}

// disconnect implements disconnect: closes all child statements, rolls back
// any open transaction, closes the native connection, destroys the entry.
// Idempotent.
func disconnect(reg *registry.Registry, p *modules.Params) (any, error) {
	connID, err := requireConnectionID(p)
	if err != nil {
		return nil, err
	}
	for _, e := range reg.Destroy(connID) {
		fmt.Fprintf(os.Stderr, "[%s] dbhelper: disconnect %s: %v\n", time.Now().Format(time.RFC3339), connID, e)
	}
	return map[string]any{"success": true}, nil
}

func lookupConnection(reg *registry.Registry, connID string) (*registry.Entry, *connectionPayload, error) {
	entry, ok := reg.Get(connID, registry.Kind("conn"))
	if !ok {
		return nil, nil, modules.NewError(modules.KindNotFound, "connection %q is not a live resource", connID)
	}
	payload, ok := entry.Payload().(*connectionPayload)
	if !ok {
		return nil, nil, modules.NewError(modules.KindInternal, "connection %q has an unexpected payload type", connID)
	}
	return entry, payload, nil
}

func requireConnectionID(p *modules.Params) (string, error) {
	var id string
	if err := p.Bind("connection_id", 0, true, &id); err != nil {
		return "", err
	}
	return id, nil
}

// beginTransaction implements begin_transaction: legal in OPEN/IDLE; in
// IN_TXN it returns state_error and no nested transaction is started.
func beginTransaction(ctx context.Context, reg *registry.Registry, p *modules.Params) (any, error) {
	connID, err := requireConnectionID(p)
	if err != nil {
		return nil, err
	}
	entry, conn, err := lookupConnection(reg, connID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()

	if conn.state == stateInTxn {
		return nil, modules.NewError(modules.KindStateError, "connection %q already has an open transaction", connID)
	}

	tx, err := conn.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	conn.tx = tx
	conn.autoCommit = false
	conn.state = stateInTxn
	entry.Touch()

	return map[string]any{"success": true}, nil
}

// commitOrRollback implements commit/rollback: no-ops that succeed when
// autocommit is true, otherwise finalize the open transaction and return
// the connection to IDLE.
func commitOrRollback(reg *registry.Registry, p *modules.Params, commit bool) (any, error) {
	connID, err := requireConnectionID(p)
	if err != nil {
		return nil, err
	}
	entry, conn, err := lookupConnection(reg, connID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()

	if conn.autoCommit && conn.tx == nil {
		return map[string]any{"success": true}, nil
	}

	if conn.tx == nil {
		return map[string]any{"success": true}, nil
	}

	var txErr error
	if commit {
		txErr = conn.tx.Commit()
	} else {
		txErr = conn.tx.Rollback()
	}
	conn.tx = nil
	conn.state = stateIdle
	entry.Touch()

	if txErr != nil {
		return nil, modules.Wrap(modules.KindDriverError, txErr)
	}
	return map[string]any{"success": true}, nil
}
