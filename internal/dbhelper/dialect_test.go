package dbhelper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecognizeDialectOracleFamily(t *testing.T) {
	cases := []string{
		"dbi:Oracle:sid=XE",
		"dbi:Oracle:host=db1;port=1521;service_name=ORCL",
		"hr@XE",
	}
	for _, dsn := range cases {
		d, err := recognizeDialect(dsn)
		require.NoError(t, err, dsn)
		assert.Equal(t, DialectOracleFamily, d, dsn)
	}
}

func TestRecognizeDialectInformixFamily(t *testing.T) {
	d, err := recognizeDialect("dbi:Informix:host=db2;port=9088;database=stores")
	require.NoError(t, err)
	assert.Equal(t, DialectInformixFamily, d)
}

func TestRecognizeDialectRejectsUnknownForm(t *testing.T) {
	_, err := recognizeDialect("postgres://localhost/db")
	assert.Error(t, err)
}

func TestResolveAuthModeExplicitPassword(t *testing.T) {
	mode, err := resolveAuthMode("password", "hr", "pw")
	require.NoError(t, err)
	assert.Equal(t, AuthPassword, mode)
}

func TestResolveAuthModeExplicitPasswordMissingCredentials(t *testing.T) {
	_, err := resolveAuthMode("password", "", "")
	assert.Error(t, err)
}

func TestResolveAuthModeAutoDefaultsToPassword(t *testing.T) {
	t.Setenv("KRB5_CONFIG", "")
	t.Setenv("KRB5CCNAME", "")
	mode, err := resolveAuthMode("auto", "hr", "pw")
	require.NoError(t, err)
	assert.Equal(t, AuthPassword, mode)
}

func TestResolveAuthModeAutoPrefersKerberosWhenConfigured(t *testing.T) {
	t.Setenv("KRB5_CONFIG", "/etc/krb5.conf")
	t.Setenv("KRB5CCNAME", "/tmp/krb5cc")
	mode, err := resolveAuthMode("auto", "", "")
	require.NoError(t, err)
	assert.Equal(t, AuthKerberos, mode)
}

func TestParseDSNOracleKeyValue(t *testing.T) {
	fields := parseDSN("dbi:Oracle:host=db1;port=1521;service_name=ORCL", DialectOracleFamily)
	assert.Equal(t, "db1", fields["host"])
	assert.Equal(t, "1521", fields["port"])
	assert.Equal(t, "ORCL", fields["service_name"])
}

func TestParseDSNOracleLegacyUserAtSid(t *testing.T) {
	fields := parseDSN("hr@XE", DialectOracleFamily)
	assert.Equal(t, "XE", fields["sid"])
}

func TestCanonicalType(t *testing.T) {
	assert.Equal(t, "integer", canonicalType("INT"))
	assert.Equal(t, "integer", canonicalType("INTEGER"))
	assert.Equal(t, "number", canonicalType("NUMBER"))
	assert.Equal(t, "number", canonicalType("DECIMAL"))
	assert.Equal(t, "string", canonicalType("VARCHAR"))
	assert.Equal(t, "clob", canonicalType("TEXT"))
	assert.Equal(t, "blob", canonicalType("BLOB"))
	assert.Equal(t, "date", canonicalType("DATE"))
	assert.Equal(t, "timestamp", canonicalType("TIMESTAMP"))
	assert.Equal(t, "other", canonicalType(""))
}
