package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"github.com/sirupsen/logrus"

	"github.com/sentinelsec/sentinel-core/pkg/domain"
	"github.com/sentinelsec/sentinel-core/pkg/infra/httpx"
	"github.com/sentinelsec/sentinel-core/pkg/infra/pluginiface"
	"github.com/sentinelsec/sentinel-core/pkg/types"
)

// DefaultInvocationTimeout bounds a single scan hook call, wall clock,
// including any awaited fetches.
const DefaultInvocationTimeout = 30 * time.Second

const (
	opLoad         = "load"
	opScanRequest  = "scan_request"
	opScanResponse = "scan_response"
)

// RuntimeOptions configures a plugin runtime.
type RuntimeOptions struct {
	InvocationTimeout time.Duration
	FetchTimeout      time.Duration
}

type RuntimeOption func(*RuntimeOptions)

// WithInvocationTimeout sets the wall-clock budget for a single scan call.
func WithInvocationTimeout(timeout time.Duration) RuntimeOption {
	return func(o *RuntimeOptions) {
		o.InvocationTimeout = timeout
	}
}

// WithFetchTimeout sets the default deadline for plugin fetch calls.
func WithFetchTimeout(timeout time.Duration) RuntimeOption {
	return func(o *RuntimeOptions) {
		o.FetchTimeout = timeout
	}
}

// Runtime executes one plugin inside a dedicated JavaScript VM. All VM access
// happens on the VM's event loop goroutine; callers interact through the
// ScanPlugin surface and never touch the VM directly. Invocations are
// serialized, so a plugin observes strictly sequential scan calls.
type Runtime struct {
	pluginID          string
	logger            *logrus.Logger
	loader            *Loader
	bridge            *bridge
	loop              *eventloop.EventLoop
	vm                *goja.Runtime
	invocationTimeout time.Duration

	mu             sync.Mutex
	state          types.PluginState
	seed           types.PluginMetadata
	meta           types.PluginMetadata
	scanRequestFn  goja.Callable
	scanResponseFn goja.Callable
}

var _ pluginiface.ScanPlugin = (*Runtime)(nil)

// NewRuntime builds an empty runtime for the plugin. The VM is live after
// this call but no module is loaded yet; Load must follow before any scan.
func NewRuntime(pluginID string, loader *Loader, httpClient httpx.Client, logger *logrus.Logger, opts ...RuntimeOption) *Runtime {
	options := &RuntimeOptions{
		InvocationTimeout: DefaultInvocationTimeout,
		FetchTimeout:      DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.InvocationTimeout <= 0 {
		options.InvocationTimeout = DefaultInvocationTimeout
	}

	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&consolePrinter{logger: logger, pluginID: pluginID}))
	loop := eventloop.NewEventLoop(eventloop.WithRegistry(registry), eventloop.EnableConsole(true))

	r := &Runtime{
		pluginID:          pluginID,
		logger:            logger,
		loader:            loader,
		loop:              loop,
		invocationTimeout: options.InvocationTimeout,
		state:             types.PluginStateCreated,
	}
	r.bridge = newBridge(pluginID, logger, httpClient, loop, options.FetchTimeout)

	loop.Start()
	ready := make(chan struct{})
	loop.RunOnLoop(func(vm *goja.Runtime) {
		r.vm = vm
		r.bridge.install(vm)
		close(ready)
	})
	<-ready

	return r
}

// Load compiles the registered module behind the specifier, evaluates it in
// the VM and validates the exported scan hooks. The seed metadata comes from
// the plugin's registry row; fields it leaves blank are filled from the
// module's own metadata export. On success the runtime transitions to ready;
// any failure is terminal for this instance.
func (r *Runtime) Load(specifier string, seed types.PluginMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != types.PluginStateCreated {
		return domain.NewExecutionError(r.pluginID, opLoad, fmt.Errorf("runtime is %s, expected %s", r.state, types.PluginStateCreated))
	}
	r.seed = seed

	bundle, err := r.loader.Compile(specifier)
	if err != nil {
		r.state = types.PluginStateFailed
		return err
	}

	errCh := make(chan error, 1)
	r.loop.RunOnLoop(func(vm *goja.Runtime) {
		trySend(errCh, r.evalModule(vm, specifier, bundle))
	})

	timer := time.NewTimer(r.invocationTimeout)
	defer timer.Stop()
	select {
	case err = <-errCh:
	case <-timer.C:
		r.interrupt("module evaluation timed out")
		err = domain.NewExecutionError(r.pluginID, opLoad, fmt.Errorf("timed out after %s", r.invocationTimeout))
	}
	if err != nil {
		r.state = types.PluginStateFailed
		return err
	}
	r.state = types.PluginStateLoaded

	if r.scanRequestFn == nil && r.scanResponseFn == nil {
		r.state = types.PluginStateFailed
		return domain.NewExecutionError(r.pluginID, opLoad, errors.New("module exports neither scan_request nor scan_response"))
	}

	r.state = types.PluginStateReady
	r.logger.WithFields(logrus.Fields{
		"plugin_id":        r.pluginID,
		"plugin_name":      r.meta.Name,
		"plugin_version":   r.meta.Version,
		"handles_request":  r.scanRequestFn != nil,
		"handles_response": r.scanResponseFn != nil,
	}).Info("Plugin loaded")
	return nil
}

// evalModule runs on the loop goroutine.
func (r *Runtime) evalModule(vm *goja.Runtime, specifier, bundle string) error {
	vm.ClearInterrupt()

	program, err := goja.Compile(specifier, bundle, false)
	if err != nil {
		return domain.NewTranspileError(specifier, err)
	}
	if _, err := vm.RunProgram(program); err != nil {
		return domain.NewExecutionError(r.pluginID, opLoad, err)
	}

	exportsVal := vm.Get(exportsGlobal)
	if exportsVal == nil || goja.IsUndefined(exportsVal) || goja.IsNull(exportsVal) {
		return domain.NewExecutionError(r.pluginID, opLoad, errors.New("module produced no exports"))
	}
	exports := exportsVal.ToObject(vm)

	if fn, ok := goja.AssertFunction(exports.Get(opScanRequest)); ok {
		r.scanRequestFn = fn
	}
	if fn, ok := goja.AssertFunction(exports.Get(opScanResponse)); ok {
		r.scanResponseFn = fn
	}
	r.meta = r.parseMetadata(vm, exports.Get("metadata"))
	return nil
}

// parseMetadata merges the module's metadata export into the registry seed.
// The registry row is authoritative; the export only fills blank fields.
func (r *Runtime) parseMetadata(vm *goja.Runtime, v goja.Value) types.PluginMetadata {
	meta := r.seed
	meta.ID = r.pluginID

	if v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		var raw map[string]interface{}
		if err := vm.ExportTo(v, &raw); err != nil {
			r.logger.WithField("plugin_id", r.pluginID).Warn("Plugin metadata export is not an object, ignoring it")
		} else {
			if meta.Name == "" {
				meta.Name = jsString(raw, "name")
			}
			if meta.Version == "" {
				meta.Version = jsString(raw, "version")
			}
			if meta.Author == "" {
				meta.Author = jsString(raw, "author")
			}
			if meta.MainCategory == "" {
				meta.MainCategory = jsString(raw, "main_category")
			}
			if meta.Category == "" {
				meta.Category = jsString(raw, "category")
			}
			if meta.Description == "" {
				meta.Description = jsString(raw, "description")
			}
			if meta.DefaultSeverity == "" {
				if sev := jsString(raw, "severity"); sev != "" {
					meta.DefaultSeverity = types.ParseSeverity(sev)
				}
			}
			if len(meta.Tags) == 0 {
				if tags, ok := raw["tags"].([]interface{}); ok {
					for _, tag := range tags {
						if s, ok := tag.(string); ok {
							meta.Tags = append(meta.Tags, s)
						}
					}
				}
			}
			if id := jsString(raw, "id"); id != "" && id != r.pluginID {
				r.logger.WithFields(logrus.Fields{
					"plugin_id":   r.pluginID,
					"metadata_id": id,
				}).Warn("Plugin metadata id differs from registry id, keeping registry id")
			}
		}
	}

	if meta.Name == "" {
		meta.Name = r.pluginID
	}
	if meta.DefaultSeverity == "" {
		meta.DefaultSeverity = types.SeverityMedium
	}
	return meta
}

// Metadata implements pluginiface.ScanPlugin.
func (r *Runtime) Metadata() types.PluginMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meta
}

// State implements pluginiface.ScanPlugin.
func (r *Runtime) State() types.PluginState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// HandlesRequests implements pluginiface.ScanPlugin.
func (r *Runtime) HandlesRequests() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scanRequestFn != nil
}

// HandlesResponses implements pluginiface.ScanPlugin.
func (r *Runtime) HandlesResponses() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scanResponseFn != nil
}

// ScanRequest implements pluginiface.ScanPlugin.
func (r *Runtime) ScanRequest(ctx context.Context, req *types.RequestContext) ([]*types.Finding, error) {
	return r.invoke(ctx, opScanRequest, requestToJS(req))
}

// ScanResponse implements pluginiface.ScanPlugin.
func (r *Runtime) ScanResponse(ctx context.Context, req *types.RequestContext, resp *types.ResponseContext) ([]*types.Finding, error) {
	return r.invoke(ctx, opScanResponse, requestToJS(req), responseToJS(resp))
}

// invoke calls an exported hook with the given arguments and waits for the
// result, following promises to settlement. Findings emitted before a
// failure are returned alongside the error.
func (r *Runtime) invoke(ctx context.Context, op string, args ...interface{}) ([]*types.Finding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != types.PluginStateReady {
		return nil, domain.NewExecutionError(r.pluginID, op, fmt.Errorf("plugin is %s, expected %s", r.state, types.PluginStateReady))
	}
	var fn goja.Callable
	switch op {
	case opScanRequest:
		fn = r.scanRequestFn
	case opScanResponse:
		fn = r.scanResponseFn
	}
	if fn == nil {
		return nil, nil
	}

	// Drop stray findings from a previously interrupted invocation.
	r.bridge.takeFindings()

	resultCh := make(chan error, 1)
	r.loop.RunOnLoop(func(vm *goja.Runtime) {
		vm.ClearInterrupt()
		jsArgs := make([]goja.Value, len(args))
		for i, arg := range args {
			if arg == nil {
				jsArgs[i] = goja.Null()
				continue
			}
			jsArgs[i] = vm.ToValue(arg)
		}
		result, err := fn(goja.Undefined(), jsArgs...)
		if err != nil {
			trySend(resultCh, err)
			return
		}
		settlePromise(vm, result, resultCh)
	})

	timer := time.NewTimer(r.invocationTimeout)
	defer timer.Stop()

	var invokeErr error
	select {
	case invokeErr = <-resultCh:
	case <-timer.C:
		r.interrupt("invocation timed out")
		invokeErr = fmt.Errorf("timed out after %s", r.invocationTimeout)
	case <-ctx.Done():
		r.interrupt("invocation canceled")
		invokeErr = ctx.Err()
	}

	findings := r.bridge.takeFindings()
	if invokeErr != nil {
		return findings, domain.NewExecutionError(r.pluginID, op, invokeErr)
	}
	return findings, nil
}

// interrupt aborts any JavaScript currently running and schedules the flag
// to clear once the interrupted job has unwound, so later loop jobs (such as
// a stray fetch settlement) run normally.
func (r *Runtime) interrupt(reason string) {
	r.vm.Interrupt(reason)
	r.loop.RunOnLoop(func(vm *goja.Runtime) {
		vm.ClearInterrupt()
	})
}

// Close implements pluginiface.ScanPlugin. It interrupts any running
// invocation and stops the event loop.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == types.PluginStateClosed {
		return
	}
	r.state = types.PluginStateClosed
	if r.vm != nil {
		r.vm.Interrupt("plugin closed")
	}
	r.loop.StopNoWait()
}

// settlePromise completes resultCh once the invocation result settles. Plain
// values settle immediately; promises are followed. Runs on the loop.
func settlePromise(vm *goja.Runtime, result goja.Value, resultCh chan error) {
	if result == nil {
		trySend(resultCh, nil)
		return
	}
	promise, ok := result.Export().(*goja.Promise)
	if !ok {
		trySend(resultCh, nil)
		return
	}
	switch promise.State() {
	case goja.PromiseStateFulfilled:
		trySend(resultCh, nil)
	case goja.PromiseStateRejected:
		trySend(resultCh, rejectionError(promise.Result()))
	default:
		obj := result.ToObject(vm)
		thenFn, ok := goja.AssertFunction(obj.Get("then"))
		if !ok {
			trySend(resultCh, nil)
			return
		}
		onFulfilled := vm.ToValue(func(goja.FunctionCall) goja.Value {
			trySend(resultCh, nil)
			return goja.Undefined()
		})
		onRejected := vm.ToValue(func(call goja.FunctionCall) goja.Value {
			trySend(resultCh, rejectionError(call.Argument(0)))
			return goja.Undefined()
		})
		if _, err := thenFn(obj, onFulfilled, onRejected); err != nil {
			trySend(resultCh, err)
		}
	}
}

func rejectionError(v goja.Value) error {
	if v == nil {
		return errors.New("promise rejected")
	}
	return fmt.Errorf("promise rejected: %s", v.String())
}

func trySend(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}

// requestToJS renders a request context as the object plugins receive.
// Bodies travel as number arrays so binary payloads survive intact. A nil
// context renders as JS null.
func requestToJS(req *types.RequestContext) interface{} {
	if req == nil {
		return nil
	}
	m := map[string]interface{}{
		"request_id":   req.ID,
		"method":       req.Method,
		"url":          req.URL,
		"headers":      orEmpty(req.Headers),
		"body":         bytesToInts(req.Body),
		"content_type": req.ContentType,
		"query_params": orEmpty(req.QueryParams),
		"is_https":     req.IsHTTPS,
		"timestamp":    req.Timestamp.UTC().Format(time.RFC3339),
		"was_edited":   req.WasEdited,
	}
	if req.WasEdited {
		m["edited_method"] = req.EditedMethod
		m["edited_url"] = req.EditedURL
		m["edited_headers"] = orEmpty(req.EditedHeaders)
		m["edited_body"] = bytesToInts(req.EditedBody)
	}
	return m
}

func responseToJS(resp *types.ResponseContext) interface{} {
	if resp == nil {
		return nil
	}
	m := map[string]interface{}{
		"request_id": resp.RequestID,
		"status":     resp.Status,
		"headers":    orEmpty(resp.Headers),
		"body":       bytesToInts(resp.Body),
		"timestamp":  resp.Timestamp.UTC().Format(time.RFC3339),
		"was_edited": resp.WasEdited,
	}
	if resp.WasEdited {
		m["edited_status"] = resp.EditedStatus
		m["edited_headers"] = orEmpty(resp.EditedHeaders)
		m["edited_body"] = bytesToInts(resp.EditedBody)
	}
	return m
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
