package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/url"
	"github.com/sirupsen/logrus"

	"github.com/sentinelsec/sentinel-core/pkg/infra/httpx"
	"github.com/sentinelsec/sentinel-core/pkg/types"
)

// DefaultFetchTimeout bounds plugin fetch calls that do not ask for a
// deadline of their own.
const DefaultFetchTimeout = 30 * time.Second

// bridge wires the host environment into a plugin VM: the Sentinel global
// (emitFinding, log), a fetch implementation backed by the shared HTTP
// client, TextEncoder/TextDecoder, URL, and a console that routes into the
// component logger.
//
// Findings emitted during an invocation accumulate here and are drained by
// the runtime after the invocation settles.
type bridge struct {
	pluginID     string
	logger       *logrus.Logger
	httpClient   httpx.Client
	loop         *eventloop.EventLoop
	fetchTimeout time.Duration

	mu       sync.Mutex
	findings []*types.Finding
}

func newBridge(pluginID string, logger *logrus.Logger, httpClient httpx.Client, loop *eventloop.EventLoop, fetchTimeout time.Duration) *bridge {
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	return &bridge{
		pluginID:     pluginID,
		logger:       logger,
		httpClient:   httpClient,
		loop:         loop,
		fetchTimeout: fetchTimeout,
	}
}

// install registers all host bindings. Must run on the loop goroutine.
func (b *bridge) install(vm *goja.Runtime) {
	url.Enable(vm)

	sentinel := vm.NewObject()
	_ = sentinel.Set("emitFinding", b.makeEmitFinding(vm))
	_ = sentinel.Set("log", b.makeLog())
	_ = vm.Set("Sentinel", sentinel)

	_ = vm.Set("fetch", b.makeFetch(vm))

	b.installTextCodec(vm)
}

// takeFindings drains the findings emitted since the last call.
func (b *bridge) takeFindings() []*types.Finding {
	b.mu.Lock()
	defer b.mu.Unlock()
	findings := b.findings
	b.findings = nil
	return findings
}

func (b *bridge) makeEmitFinding(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			panic(vm.NewTypeError("emitFinding requires a finding object"))
		}
		var raw map[string]interface{}
		if err := vm.ExportTo(call.Argument(0), &raw); err != nil {
			panic(vm.NewTypeError("emitFinding argument must be an object"))
		}

		finding := &types.Finding{
			PluginID:    b.pluginID,
			VulnType:    jsString(raw, "vuln_type"),
			Title:       jsString(raw, "title"),
			Description: jsString(raw, "description"),
			Evidence:    jsString(raw, "evidence"),
			Location:    jsString(raw, "location"),
			Severity:    types.ParseSeverity(jsString(raw, "severity")),
			Confidence:  types.ParseConfidence(jsString(raw, "confidence")),
			CWE:         jsString(raw, "cwe"),
			OWASP:       jsString(raw, "owasp"),
			Remediation: jsString(raw, "remediation"),
			Timestamp:   time.Now().UTC(),
		}

		b.mu.Lock()
		b.findings = append(b.findings, finding)
		b.mu.Unlock()
		return goja.Undefined()
	}
}

func (b *bridge) makeLog() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		entry := b.logger.WithField("plugin_id", b.pluginID)
		level, message := "info", ""
		switch len(call.Arguments) {
		case 0:
			return goja.Undefined()
		case 1:
			message = call.Argument(0).String()
		default:
			level = call.Argument(0).String()
			message = call.Argument(1).String()
		}
		switch strings.ToLower(level) {
		case "debug":
			entry.Debug(message)
		case "warn", "warning":
			entry.Warn(message)
		case "error":
			entry.Error(message)
		default:
			entry.Info(message)
		}
		return goja.Undefined()
	}
}

type fetchResult struct {
	status  int
	headers map[string]string
	body    []byte
}

// makeFetch returns a promise-based fetch. The request runs on its own
// goroutine; settlement is scheduled back onto the loop.
func (b *bridge) makeFetch(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		promise, resolve, reject := vm.NewPromise()

		rawURL := call.Argument(0).String()
		method := http.MethodGet
		headers := make(map[string]string)
		var body []byte
		timeout := b.fetchTimeout

		if opts := call.Argument(1); !goja.IsUndefined(opts) && !goja.IsNull(opts) {
			var o map[string]interface{}
			if err := vm.ExportTo(opts, &o); err != nil {
				panic(vm.NewTypeError("fetch options must be an object"))
			}
			if m, ok := o["method"].(string); ok && m != "" {
				method = strings.ToUpper(m)
			}
			if h, ok := o["headers"].(map[string]interface{}); ok {
				for k, v := range h {
					headers[k] = fmt.Sprintf("%v", v)
				}
			}
			if rawBody, ok := o["body"]; ok {
				body = jsBytes(rawBody)
			}
			if ms := jsNumber(o["timeout_ms"]); ms > 0 {
				timeout = time.Duration(ms) * time.Millisecond
			}
		}

		go func() {
			result, err := b.doFetch(rawURL, method, headers, body, timeout)
			b.loop.RunOnLoop(func(vm *goja.Runtime) {
				if err != nil {
					reject(vm.NewGoError(err))
					return
				}
				resolve(b.responseToJS(vm, result))
			})
		}()

		return vm.ToValue(promise)
	}
}

func (b *bridge) doFetch(rawURL, method string, headers map[string]string, body []byte, timeout time.Duration) (*fetchResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}
	return &fetchResult{status: resp.StatusCode, headers: respHeaders, body: data}, nil
}

func (b *bridge) responseToJS(vm *goja.Runtime, result *fetchResult) goja.Value {
	obj := vm.NewObject()
	_ = obj.Set("ok", result.status >= 200 && result.status < 300)
	_ = obj.Set("status", result.status)
	_ = obj.Set("headers", result.headers)
	bodyText := string(result.body)
	_ = obj.Set("text", func() string { return bodyText })
	_ = obj.Set("json", func(goja.FunctionCall) goja.Value {
		var parsed interface{}
		if err := json.Unmarshal(result.body, &parsed); err != nil {
			panic(vm.NewGoError(fmt.Errorf("response body is not valid JSON: %w", err)))
		}
		return vm.ToValue(parsed)
	})
	return obj
}

func (b *bridge) installTextCodec(vm *goja.Runtime) {
	_ = vm.Set("TextEncoder", func(call goja.ConstructorCall) *goja.Object {
		_ = call.This.Set("encode", func(fc goja.FunctionCall) goja.Value {
			data := []byte(fc.Argument(0).String())
			u8, err := vm.New(vm.Get("Uint8Array"), vm.ToValue(vm.NewArrayBuffer(data)))
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return u8
		})
		return nil
	})
	_ = vm.Set("TextDecoder", func(call goja.ConstructorCall) *goja.Object {
		_ = call.This.Set("decode", func(fc goja.FunctionCall) goja.Value {
			return vm.ToValue(string(valueBytes(vm, fc.Argument(0))))
		})
		return nil
	})
}

// consolePrinter routes plugin console output into the component logger.
type consolePrinter struct {
	logger   *logrus.Logger
	pluginID string
}

var _ console.Printer = (*consolePrinter)(nil)

func (p *consolePrinter) Log(message string) {
	p.logger.WithField("plugin_id", p.pluginID).Info(message)
}

func (p *consolePrinter) Warn(message string) {
	p.logger.WithField("plugin_id", p.pluginID).Warn(message)
}

func (p *consolePrinter) Error(message string) {
	p.logger.WithField("plugin_id", p.pluginID).Error(message)
}

func jsString(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func jsNumber(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// jsBytes converts an exported fetch body into raw bytes. Strings pass
// through as UTF-8; typed arrays and plain number arrays become the
// corresponding bytes.
func jsBytes(v interface{}) []byte {
	switch data := v.(type) {
	case nil:
		return nil
	case string:
		return []byte(data)
	case []byte:
		return data
	case goja.ArrayBuffer:
		return data.Bytes()
	case []interface{}:
		out := make([]byte, 0, len(data))
		for _, item := range data {
			out = append(out, byte(jsNumber(item)))
		}
		return out
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}

// valueBytes converts a goja value (Uint8Array, ArrayBuffer, number array or
// string) into raw bytes.
func valueBytes(vm *goja.Runtime, v goja.Value) []byte {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	switch data := v.Export().(type) {
	case []byte:
		return data
	case goja.ArrayBuffer:
		return data.Bytes()
	case string:
		return []byte(data)
	}
	var out []byte
	if err := vm.ExportTo(v, &out); err == nil {
		return out
	}
	panic(vm.NewTypeError("cannot convert value to bytes"))
}

// bytesToInts renders a byte slice as the number array plugins receive for
// request and response bodies.
func bytesToInts(data []byte) []int {
	out := make([]int, len(data))
	for i, b := range data {
		out[i] = int(b)
	}
	return out
}
