package dbhelper

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/helperd/helperd/internal/modules"
)

// dsnFields is the parsed key=value form of a DSN's connect-option segment
// (the part after the "dbi:<Family>:" prefix, or after "user@" in the legacy
// oracle form).
type dsnFields map[string]string

// parseDSN splits a recognized DSN into its dialect and connect-option
// fields. Oracle-family accepts "dbi:Oracle:key=val;key=val" and the legacy
// "user@sid" shorthand (folded here into {sid: "..."}); informix-family
// accepts "dbi:Informix:key=val;key=val".
func parseDSN(dsn string, dialect Dialect) dsnFields {
	fields := dsnFields{}

	body := dsn
	switch {
	case strings.Contains(strings.ToLower(dsn), "dbi:oracle:"):
		body = dsn[strings.Index(strings.ToLower(dsn), "dbi:oracle:")+len("dbi:oracle:"):]
	case strings.Contains(strings.ToLower(dsn), "dbi:informix:"):
		body = dsn[strings.Index(strings.ToLower(dsn), "dbi:informix:")+len("dbi:informix:"):]
	case dialect == DialectOracleFamily && strings.Contains(dsn, "@"):
		parts := strings.SplitN(dsn, "@", 2)
		fields["sid"] = parts[1]
		return fields
	}

	for _, pair := range strings.Split(body, ";") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			fields[strings.ToLower(kv[0])] = kv[1]
		} else {
			// Bare value with no "=" (e.g. trailing ";sid") is treated as a sid.
			fields["sid"] = kv[0]
		}
	}
	return fields
}

// driverDSN builds the real database/sql driver name and DSN string used to
// open a connection for the given dialect. Oracle-family maps onto pgx/v5's
// stdlib driver; informix-family onto go-sql-driver/mysql -- both are real,
// actively maintained database/sql drivers used as dialect stand-ins in the
// absence of a genuine Oracle/Informix Go driver anywhere in the retrieved
// corpus (see DESIGN.md's "Open questions resolved").
func driverDSN(dialect Dialect, fields dsnFields, username, password string) (driverName, dsn string, err error) {
	switch dialect {
	case DialectOracleFamily:
		host := fields["host"]
		if host == "" {
			host = "localhost"
		}
		port := fields["port"]
		if port == "" {
			port = "5432"
		}
		dbname := fields["service_name"]
		if dbname == "" {
			dbname = fields["sid"]
		}
		if dbname == "" {
			return "", "", modules.NewError(modules.KindInvalidParams, "oracle-family dsn missing service_name/sid")
		}
		return "pgx", fmt.Sprintf("postgres://%s:%s@%s:%s/%s", username, password, host, port, dbname), nil

	case DialectInformixFamily:
		host := fields["host"]
		if host == "" {
			host = "localhost"
		}
		port := fields["port"]
		if port == "" {
			port = "3306"
		}
		dbname := fields["database"]
		if dbname == "" {
			dbname = fields["db"]
		}
		return "mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s", username, password, host, port, dbname), nil

	default:
		return "", "", modules.NewError(modules.KindInvalidParams, "unsupported dialect %q", dialect)
	}
}

// openDB opens (but does not yet prove live) a *sql.DB for the given
// dialect/DSN combination.
func openDB(dialect Dialect, dsn string, username, password string) (*sql.DB, error) {
	fields := parseDSN(dsn, dialect)
	driverName, fullDSN, err := driverDSN(dialect, fields, username, password)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, fullDSN)
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	return db, nil
}
