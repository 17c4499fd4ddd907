// Package xpathhelper implements the "xml" helper module: parsed XML
// documents registered as resource-registry entries, and XPath queries over
// them, backed by github.com/antchfx/xmlquery (which wraps
// github.com/antchfx/xpath's expression engine).
package xpathhelper

import (
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

const kindDoc registry.Kind = "doc"

// docPayload is the native handle stored under a doc_... id.
type docPayload struct {
	root *xmlquery.Node
}

// parseDocument implements xml.parse({xml}): parses the given XML text and
// returns {doc_id}.
func parseDocument(reg *registry.Registry, p *modules.Params) (any, error) {
	var xml string
	if err := p.Bind("xml", 0, true, &xml); err != nil {
		return nil, err
	}

	root, err := xmlquery.Parse(strings.NewReader(xml))
	if err != nil {
		return nil, modules.NewError(modules.KindInvalidParams, "xml: %v", err)
	}

	entry, err := reg.Create(kindDoc, &docPayload{root: root}, "", nil, nil)
	if err != nil {
		return nil, modules.Wrap(modules.KindInternal, err)
	}

	return map[string]any{"doc_id": entry.ID}, nil
}

func lookupDoc(reg *registry.Registry, docID string) (*registry.Entry, *docPayload, error) {
	entry, ok := reg.Get(docID, kindDoc)
	if !ok {
		return nil, nil, modules.NewError(modules.KindNotFound, "document %q is not a live resource", docID)
	}
	payload, ok := entry.Payload().(*docPayload)
	if !ok {
		return nil, nil, modules.NewError(modules.KindInternal, "document %q has an unexpected payload type", docID)
	}
	return entry, payload, nil
}

// queryDocument implements xml.query({doc_id, expression}): evaluates an
// XPath expression and returns every matching node's text and serialized XML.
func queryDocument(reg *registry.Registry, p *modules.Params) (any, error) {
	var docID, expression string
	if err := p.Bind("doc_id", 0, true, &docID); err != nil {
		return nil, err
	}
	if err := p.Bind("expression", 1, true, &expression); err != nil {
		return nil, err
	}

	entry, doc, err := lookupDoc(reg, docID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()

	nodes, err := xmlquery.QueryAll(doc.root, expression)
	if err != nil {
		return nil, modules.NewError(modules.KindInvalidParams, "expression: %v", err)
	}
	entry.Touch()

	matches := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		matches = append(matches, map[string]any{
			"text": n.InnerText(),
			"xml":  n.OutputXML(true),
		})
	}
	return map[string]any{"matches": matches}, nil
}

// queryOne implements xml.query_one({doc_id, expression}): the first match
// only, with found=false rather than an error when nothing matches.
func queryOne(reg *registry.Registry, p *modules.Params) (any, error) {
	var docID, expression string
	if err := p.Bind("doc_id", 0, true, &docID); err != nil {
		return nil, err
	}
	if err := p.Bind("expression", 1, true, &expression); err != nil {
		return nil, err
	}

	entry, doc, err := lookupDoc(reg, docID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()

	n, err := xmlquery.Query(doc.root, expression)
	if err != nil {
		return nil, modules.NewError(modules.KindInvalidParams, "expression: %v", err)
	}
	entry.Touch()

	if n == nil {
		return map[string]any{"found": false}, nil
	}
	return map[string]any{
		"found": true,
		"text":  n.InnerText(),
		"xml":   n.OutputXML(true),
	}, nil
}

// cleanupDocument implements xml.cleanup({doc_id}): idempotent release.
func cleanupDocument(reg *registry.Registry, p *modules.Params) (any, error) {
	var docID string
	if err := p.Bind("doc_id", 0, true, &docID); err != nil {
		return nil, err
	}
	reg.Destroy(docID)
	return map[string]any{"success": true}, nil
}
