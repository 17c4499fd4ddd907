package rpc

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Dispatcher resolves (module, function) against the static registration
// table built at startup and invokes the helper. It is the sole request-time
// trust boundary: only functions explicitly present in a module's whitelist
// are callable, regardless of language-level visibility.
type Dispatcher struct {
	modules   map[string]modules.Module
	telemetry *telemetry.Providers
	metrics   *Metrics
}

// NewDispatcher builds a dispatcher from the given set of registered
// modules. mods is the full, fixed set loaded once at startup.
func NewDispatcher(mods []modules.Module, tel *telemetry.Providers, metrics *Metrics) *Dispatcher {
	table := make(map[string]modules.Module, len(mods))
	for _, m := range mods {
		table[m.Name()] = m
	}
	return &Dispatcher{modules: table, telemetry: tel, metrics: metrics}
}

// Dispatch resolves and invokes one request, recovering from any panic in
// the helper call and always recording metrics regardless of outcome -- a
// long-running daemon must never die from one bad request.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) *Response {
	opKey := req.Module + "." + req.Function
	start := time.Now()

	ctx, span := d.telemetry.Tracer.Start(ctx, "dispatcher.handle",
		trace.WithAttributes(
			attribute.String("module", req.Module),
			attribute.String("function", req.Function),
		),
	)
	defer span.End()

	resp := d.dispatchRecovered(ctx, req)

	elapsed := time.Since(start)
	errKind := ""
	if !resp.Success {
		errKind = resp.ErrorKind
		span.SetAttributes(attribute.String("error_kind", errKind))
		span.SetStatus(codes.Error, resp.Error)
	}
	d.metrics.Record(opKey, elapsed, errKind)
	d.recordOTel(ctx, opKey, elapsed, errKind)

	return resp
}

func (d *Dispatcher) dispatchRecovered(ctx context.Context, req Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "[%s] dispatcher: recovered panic in %s.%s: %v\n",
				stamp(), req.Module, req.Function, r)
			resp = errorResponse(req, string(modules.KindInternal), fmt.Sprintf("internal error: %v", r))
		}
	}()

	if req.Module == "" || req.Function == "" {
		return errorResponse(req, string(modules.KindBadRequest), "module and function are required")
	}

	mod, ok := d.modules[req.Module]
	if !ok {
		return errorResponse(req, string(modules.KindUnknownModule), fmt.Sprintf("unknown module %q", req.Module))
	}

	fn, ok := mod.Functions()[req.Function]
	if !ok {
		return errorResponse(req, string(modules.KindUnknownFunction), fmt.Sprintf("unknown function %q.%q", req.Module, req.Function))
	}

	params, err := modules.NewParamsFromRaw(req.Params)
	if err != nil {
		return errorResponse(req, string(modules.KindOf(err)), err.Error())
	}

	result, err := fn(ctx, params)
	if err != nil {
		kind := modules.KindOf(err)
		return errorResponse(req, string(kind), err.Error())
	}

	out, err := successResponse(req, result)
	if err != nil {
		return errorResponse(req, string(modules.KindInternal), fmt.Sprintf("marshaling result: %v", err))
	}
	return out
}

func (d *Dispatcher) recordOTel(ctx context.Context, opKey string, elapsed time.Duration, errKind string) {
	set := metric.WithAttributes(attribute.String("operation", opKey))
	d.telemetry.RequestCounter.Add(ctx, 1, set)
	d.telemetry.LatencyRecorder.Record(ctx, float64(elapsed.Microseconds())/1000.0, set)
	if errKind != "" {
		errSet := metric.WithAttributes(attribute.String("operation", opKey), attribute.String("error_kind", errKind))
		d.telemetry.ErrorCounter.Add(ctx, 1, errSet)
	}
}

func stamp() string {
	return time.Now().Format("2006-01-02T15:04:05.000Z07:00")
}
