package xpathhelper

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

const sampleXML = `<catalog>
  <book id="bk101"><title>Go in Practice</title><price>29.95</price></book>
  <book id="bk102"><title>Legacy Systems</title><price>19.99</price></book>
</catalog>`

func parseSample(t *testing.T, reg *registry.Registry) string {
	t.Helper()
	res, err := parseDocument(reg, objParams(t, map[string]any{"xml": sampleXML}))
	require.NoError(t, err)
	return res.(map[string]any)["doc_id"].(string)
}

func TestParseRejectsMalformedXML(t *testing.T) {
	reg := registry.New()
	_, err := parseDocument(reg, objParams(t, map[string]any{"xml": "<unclosed>"}))
	require.Error(t, err)
	assert.Equal(t, modules.KindInvalidParams, modules.KindOf(err))
}

func TestQueryReturnsAllMatches(t *testing.T) {
	reg := registry.New()
	docID := parseSample(t, reg)

	res, err := queryDocument(reg, objParams(t, map[string]any{
		"doc_id":     docID,
		"expression": "//book/title",
	}))
	require.NoError(t, err)
	matches := res.(map[string]any)["matches"].([]map[string]any)
	require.Len(t, matches, 2)
	assert.Equal(t, "Go in Practice", matches[0]["text"])
	assert.Equal(t, "Legacy Systems", matches[1]["text"])
}

func TestQueryOneFindsFirstMatch(t *testing.T) {
	reg := registry.New()
	docID := parseSample(t, reg)

	res, err := queryOne(reg, objParams(t, map[string]any{
		"doc_id":     docID,
		"expression": "//book[@id='bk102']/price",
	}))
	require.NoError(t, err)
	m := res.(map[string]any)
	assert.Equal(t, true, m["found"])
	assert.Equal(t, "19.99", m["text"])
}

func TestQueryOneReportsNotFoundWithoutError(t *testing.T) {
	reg := registry.New()
	docID := parseSample(t, reg)

	res, err := queryOne(reg, objParams(t, map[string]any{
		"doc_id":     docID,
		"expression": "//book[@id='nope']",
	}))
	require.NoError(t, err)
	assert.Equal(t, false, res.(map[string]any)["found"])
}

func TestQueryRejectsInvalidExpression(t *testing.T) {
	reg := registry.New()
	docID := parseSample(t, reg)

	_, err := queryDocument(reg, objParams(t, map[string]any{
		"doc_id":     docID,
		"expression": "//[[[",
	}))
	require.Error(t, err)
	assert.Equal(t, modules.KindInvalidParams, modules.KindOf(err))
}

func TestQueryAgainstUnknownDocumentIsNotFound(t *testing.T) {
	reg := registry.New()
	_, err := queryDocument(reg, objParams(t, map[string]any{
		"doc_id":     "doc_does-not-exist",
		"expression": "//book",
	}))
	require.Error(t, err)
	assert.Equal(t, modules.KindNotFound, modules.KindOf(err))
}

func TestCleanupIsIdempotent(t *testing.T) {
	reg := registry.New()
	docID := parseSample(t, reg)

	_, err := cleanupDocument(reg, objParams(t, map[string]any{"doc_id": docID}))
	require.NoError(t, err)
	_, err = cleanupDocument(reg, objParams(t, map[string]any{"doc_id": docID}))
	assert.NoError(t, err)

	_, _, err = lookupDoc(reg, docID)
	assert.Error(t, err)
}

func TestModuleExposesAllOperations(t *testing.T) {
	m := New(registry.New())
	assert.Equal(t, "xml", m.Name())
	for _, name := range []string{"parse", "query", "query_one", "cleanup"} {
		_, ok := m.Functions()[name]
		assert.True(t, ok, name)
	}
}
