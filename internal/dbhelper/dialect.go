// Package dbhelper implements the database helper state machine: connection
// and statement lifecycle, transaction semantics, typed fetch,
// bind-parameter handling, and metadata extraction on top of native
// database/sql driver bindings for two dialect families. The dialect
// resolution dispatches on a recognized DSN prefix to a concrete backend,
// the same shape as a backend-registration factory, though here it
// registers database/sql drivers rather than a generic storage interface.
package dbhelper

import (
	"os"
	"strings"

	"github.com/helperd/helperd/internal/modules"
)

// Dialect is one of the two DSN families the helper accepts; all other
// dialects are rejected at connect time.
type Dialect string

const (
	DialectOracleFamily   Dialect = "oracle-family"
	DialectInformixFamily Dialect = "informix-family"
)

// AuthMode is the resolved authentication strategy for a connection.
type AuthMode string

const (
	AuthPassword AuthMode = "password"
	AuthKerberos AuthMode = "kerberos"
)

// recognizeDialect inspects a DSN string and returns which family it belongs
// to. Oracle-family forms: "dbi:Oracle:...", or legacy "user@sid" (where the
// sid is folded in). Informix-family form: "dbi:Informix:..." only; a bare
// DSN without a "dbi:" prefix or an "@" is rejected.
func recognizeDialect(dsn string) (Dialect, error) {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "dbi:oracle:"):
		return DialectOracleFamily, nil
	case strings.HasPrefix(lower, "dbi:informix:"):
		return DialectInformixFamily, nil
	case strings.Contains(dsn, "@") && !strings.Contains(dsn, "://"):
		// legacy "user@sid" form: the @sid is folded into the DSN, no dbi: prefix.
		return DialectOracleFamily, nil
	default:
		return "", modules.NewError(modules.KindInvalidParams, "dsn %q does not match a recognized oracle-family or informix-family form", dsn)
	}
}

// resolveAuthMode implements auth_mode resolution: "auto" chooses kerberos
// iff both KRB5_CONFIG and KRB5CCNAME are set, else password.
func resolveAuthMode(requested string, username, password string) (AuthMode, error) {
	switch requested {
	case "", "auto":
		if os.Getenv("KRB5_CONFIG") != "" && os.Getenv("KRB5CCNAME") != "" {
			return AuthKerberos, nil
		}
		return AuthPassword, nil
	case "password":
		if username == "" || password == "" {
			return "", modules.NewError(modules.KindInvalidParams, "auth_mode=password requires username and password")
		}
		return AuthPassword, nil
	case "kerberos":
		return AuthKerberos, nil
	default:
		return "", modules.NewError(modules.KindInvalidParams, "unrecognized auth_mode %q", requested)
	}
}
