package datetimehelper

import (
	"time"

	"github.com/helperd/helperd/internal/modules"
)

// nowOp implements datetime.now(): the current instant in both epoch-seconds
// and RFC 3339 form.
func nowOp(p *modules.Params) (any, error) {
	return timeResult(time.Now().UTC()), nil
}

// parseOp implements datetime.parse({value, layout}): parses value with the
// given Go time layout (default time.RFC3339).
func parseOp(p *modules.Params) (any, error) {
	var value, layout string
	if err := p.Bind("value", 0, true, &value); err != nil {
		return nil, err
	}
	if err := p.Bind("layout", 1, false, &layout); err != nil {
		return nil, err
	}
	if layout == "" {
		layout = time.RFC3339
	}

	t, err := time.Parse(layout, value)
	if err != nil {
		return nil, modules.NewError(modules.KindInvalidParams, "parse %q with layout %q: %v", value, layout, err)
	}
	return timeResult(t), nil
}

// formatOp implements datetime.format({value, layout}): formats a unix
// epoch-seconds value with the given Go time layout (default
// time.RFC3339).
func formatOp(p *modules.Params) (any, error) {
	var value int64
	var layout string
	if err := p.Bind("value", 0, true, &value); err != nil {
		return nil, err
	}
	if err := p.Bind("layout", 1, false, &layout); err != nil {
		return nil, err
	}
	if layout == "" {
		layout = time.RFC3339
	}
	return map[string]any{"formatted": time.Unix(value, 0).UTC().Format(layout)}, nil
}

// addDurationOp implements datetime.add_duration({value, duration}): applies
// a compact relative-duration expression ("+1d", "-6h", "3m", "1y") to a unix
// epoch-seconds base value.
func addDurationOp(p *modules.Params) (any, error) {
	var value int64
	var duration string
	if err := p.Bind("value", 0, true, &value); err != nil {
		return nil, err
	}
	if err := p.Bind("duration", 1, true, &duration); err != nil {
		return nil, err
	}

	base := time.Unix(value, 0).UTC()
	result, err := ParseCompactDuration(duration, base)
	if err != nil {
		return nil, err
	}
	return timeResult(result), nil
}

// diffOp implements datetime.diff({a, b}): b - a in seconds, both unix
// epoch-seconds values.
func diffOp(p *modules.Params) (any, error) {
	var a, b int64
	if err := p.Bind("a", 0, true, &a); err != nil {
		return nil, err
	}
	if err := p.Bind("b", 1, true, &b); err != nil {
		return nil, err
	}
	return map[string]any{"seconds": b - a}, nil
}

// parseNaturalOp implements datetime.parse_natural({text, reference}): the
// olebedev/when-backed convenience operation. reference defaults to now.
func parseNaturalOp(p *modules.Params) (any, error) {
	var text string
	var referenceUnix int64
	if err := p.Bind("text", 0, true, &text); err != nil {
		return nil, err
	}
	if err := p.Bind("reference", 1, false, &referenceUnix); err != nil {
		return nil, err
	}

	base := time.Now().UTC()
	if referenceUnix != 0 {
		base = time.Unix(referenceUnix, 0).UTC()
	}

	t, err := parseNaturalLanguage(text, base)
	if err != nil {
		return nil, err
	}
	return timeResult(t), nil
}

func timeResult(t time.Time) map[string]any {
	return map[string]any{
		"unix": t.Unix(),
		"iso8601": t.Format(time.RFC3339),
	}
}
