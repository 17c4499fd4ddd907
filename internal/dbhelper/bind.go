package dbhelper

import (
	"encoding/json"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

// namedBindValue is one entry of the bind_params object's named/typed
// interface: {value, type?, direction? (in|out|inout), size?}.
type namedBindValue struct {
	Value     json.RawMessage `json:"value"`
	Type      string          `json:"type"`
	Direction string          `json:"direction"`
	Size      int             `json:"size"`
}

// decodeBindValues implements the positional interface's JSON-to-SQL-value
// coercion: nulls bind as NULL, numbers as NUMBER, strings pass through.
func decodeBindValues(raw []json.RawMessage) ([]any, error) {
	values := make([]any, len(raw))
	for i, r := range raw {
		v, err := decodeJSONScalar(r)
		if err != nil {
			return nil, modules.NewError(modules.KindInvalidParams, "bind_values[%d]: %v", i, err)
		}
		values[i] = v
	}
	return values, nil
}

// coerceBindValue decodes one named/typed bind parameter's value as a plain
// JSON scalar (null binds as NULL). The type, direction and size fields are
// not consulted: a declared type does not change how the value is bound, and
// no output buffer is allocated for out/inout parameters.
func coerceBindValue(b namedBindValue) any {
	v, err := decodeJSONScalar(b.Value)
	if err != nil {
		return nil
	}
	return v
}

func decodeJSONScalar(raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// getBindValue implements get_bind_value(statement_id, name): retrieves an
// out/inout parameter's post-execute value.
//
// Neither stand-in driver (pgx/v5/stdlib, go-sql-driver/mysql) supports
// database/sql output parameters -- database/sql itself has no API for a
// driver to hand back an out-bind's value short of sql.Named with a
// driver.NamedValueChecker the stand-ins don't implement. stmt.outParams is
// therefore never populated, and every get_bind_value call returns not_found.
// A legacy caller that never declared an out/inout parameter is unaffected.
func getBindValue(reg *registry.Registry, p *modules.Params) (any, error) {
	var stmtID, name string
	if err := p.Bind("statement_id", 0, true, &stmtID); err != nil {
		return nil, err
	}
	if err := p.Bind("name", 1, true, &name); err != nil {
		return nil, err
	}

	stmtEntry, stmt, err := lookupStatement(reg, stmtID)
	if err != nil {
		return nil, err
	}

	stmtEntry.Lock()
	defer stmtEntry.Unlock()

	out, ok := stmt.outParams[name]
	if !ok {
		return nil, modules.NewError(modules.KindNotFound, "no out parameter named %q on statement %q", name, stmtID)
	}
	return map[string]any{"value": out.value}, nil
}
