package modules

import (
	"context"
	"encoding/json"
)

// Function is a single whitelisted operation inside a module. Params has
// already been coerced by the dispatcher into one of: an object (named args),
// an array (positional args), or a single scalar (one positional arg) --
// Params wraps whichever shape arrived.
type Function func(ctx context.Context, p *Params) (any, error)

// Module is a registered helper. Name is the wire-level "module" value
// clients send; Functions is the static whitelist of callable operations --
// only functions present in this map are callable, regardless of what else
// the implementing package happens to export.
type Module interface {
	Name() string
	Functions() map[string]Function
}

// Params is the dispatcher's coerced view of a request's "params" field.
// Exactly one of the three representations is populated, matching how the
// params value arrived on the wire (object, array, or scalar).
type Params struct {
	object map[string]json.RawMessage
	array  []json.RawMessage
	scalar json.RawMessage
	isObj  bool
	isArr  bool
}

// NewParamsFromRaw coerces a raw params value per the dispatcher contract:
// object -> named arguments, array -> positional arguments, scalar -> a
// single positional argument, missing/null -> an empty object.
func NewParamsFromRaw(raw json.RawMessage) (*Params, error) {
	p := &Params{}
	if len(raw) == 0 || string(raw) == "null" {
		p.isObj = true
		p.object = map[string]json.RawMessage{}
		return p, nil
	}

	trimmed := trimLeadingSpace(raw)
	switch {
	case len(trimmed) > 0 && trimmed[0] == '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, NewError(KindBadRequest, "params object is not valid JSON: %w", err)
		}
		p.isObj = true
		p.object = obj
	case len(trimmed) > 0 && trimmed[0] == '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, NewError(KindBadRequest, "params array is not valid JSON: %w", err)
		}
		p.isArr = true
		p.array = arr
	default:
		p.scalar = raw
	}
	return p, nil
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

// Get returns the named argument when params arrived as an object. For
// array/scalar params it returns (nil, false) -- callers needing positional
// access should use At/Scalar instead.
func (p *Params) Get(name string) (json.RawMessage, bool) {
	if !p.isObj {
		return nil, false
	}
	v, ok := p.object[name]
	return v, ok
}

// At returns the i-th positional argument when params arrived as an array.
func (p *Params) At(i int) (json.RawMessage, bool) {
	if !p.isArr || i < 0 || i >= len(p.array) {
		return nil, false
	}
	return p.array[i], true
}

// Scalar returns the raw scalar value when params arrived as a bare value
// (string/number/bool), treated as a single positional argument.
func (p *Params) Scalar() (json.RawMessage, bool) {
	if p.isObj || p.isArr || p.scalar == nil {
		return nil, false
	}
	return p.scalar, true
}

// Bind decodes the named field (object params) or the i-th positional field
// (array/scalar params) into out. Returns invalid_params on a missing
// required field or a type mismatch.
func (p *Params) Bind(name string, positional int, required bool, out any) error {
	var raw json.RawMessage
	var ok bool
	switch {
	case p.isObj:
		raw, ok = p.Get(name)
	case p.isArr:
		raw, ok = p.At(positional)
	default:
		if positional == 0 {
			raw, ok = p.Scalar()
		}
	}
	if !ok {
		if required {
			return NewError(KindInvalidParams, "missing required parameter %q", name)
		}
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return NewError(KindInvalidParams, "parameter %q has wrong type: %w", name, err)
	}
	return nil
}
