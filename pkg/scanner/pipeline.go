package scanner

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/sentinelsec/sentinel-core/pkg/domain"
	"github.com/sentinelsec/sentinel-core/pkg/domain/traffic"
	"github.com/sentinelsec/sentinel-core/pkg/infra/cache"
	"github.com/sentinelsec/sentinel-core/pkg/infra/cache/channel"
	"github.com/sentinelsec/sentinel-core/pkg/infra/cache/event"
	"github.com/sentinelsec/sentinel-core/pkg/infra/httpx"
	"github.com/sentinelsec/sentinel-core/pkg/infra/pluginiface"
	"github.com/sentinelsec/sentinel-core/pkg/infra/prometheus"
	"github.com/sentinelsec/sentinel-core/pkg/plugins"
	"github.com/sentinelsec/sentinel-core/pkg/queue"
	"github.com/sentinelsec/sentinel-core/pkg/types"
)

const (
	scanRequestHook  = "scan_request"
	scanResponseHook = "scan_response"
)

// Pipeline is the single consumer of the scan task queue. It correlates
// request and response events, fans each one out to the loaded plugins one
// at a time, attaches audit context to every emitted finding and forwards
// findings to the deduplication stage.
//
// Plugin failures are contained per plugin and per task: a throwing plugin
// is logged and skipped, the rest of the registry still runs.
type Pipeline struct {
	logger      *logrus.Logger
	manager     plugins.Manager
	tasks       *queue.Queue[types.ScanTask]
	findings    *queue.Queue[*types.Finding]
	correlation *CorrelationCache

	trafficRepository traffic.Repository
	breaker           httpx.CircuitBreaker
	publisher         cache.EventPublisher

	tasksProcessed  atomic.Uint64
	findingsEmitted atomic.Uint64
}

func NewPipeline(
	manager plugins.Manager,
	tasks *queue.Queue[types.ScanTask],
	findings *queue.Queue[*types.Finding],
	logger *logrus.Logger,
) *Pipeline {
	return &Pipeline{
		logger:      logger,
		manager:     manager,
		tasks:       tasks,
		findings:    findings,
		correlation: NewCorrelationCache(),
	}
}

// WithTrafficStore enables the audit trail: every correlated pair is
// persisted as a traffic record before plugins run, independent of plugin
// outcomes. The breaker keeps a dead store from stalling the loop; pass nil
// to write unguarded.
func (p *Pipeline) WithTrafficStore(repository traffic.Repository, breaker httpx.CircuitBreaker) *Pipeline {
	p.trafficRepository = repository
	p.breaker = breaker
	return p
}

// WithPublisher republishes persisted traffic records on the egress channel,
// tagged with their store id.
func (p *Pipeline) WithPublisher(publisher cache.EventPublisher) *Pipeline {
	p.publisher = publisher
	return p
}

// Run consumes tasks until the queue closes or the context is canceled.
// Queue close is the clean shutdown path and returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("Scan pipeline started")

	for {
		task, err := p.tasks.Pop(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrQueueClosed) {
				p.logger.Info("Scan pipeline stopped, task queue closed")
				return nil
			}
			return err
		}

		p.tasksProcessed.Add(1)
		prometheus.TasksProcessedTotal.WithLabelValues(string(task.Kind)).Inc()

		switch task.Kind {
		case types.TaskRequest:
			p.processRequest(ctx, task.Request)
		case types.TaskResponse:
			p.processResponse(ctx, task.Response)
		case types.TaskReloadPlugin:
			if err := p.manager.ReloadPlugin(ctx, task.PluginID); err != nil {
				p.logger.WithError(err).WithField("plugin_id", task.PluginID).Error("Failed to reload plugin")
			}
		default:
			p.logger.WithField("kind", string(task.Kind)).Warn("Skipping scan task of unknown kind")
		}
	}
}

func (p *Pipeline) processRequest(ctx context.Context, req *types.RequestContext) {
	// Cached before anything else so the response can correlate even when
	// no plugin runs.
	p.correlation.Put(req)

	// CONNECT is the https tunnel handshake, not a scannable exchange.
	if req.Method == http.MethodConnect {
		p.logger.WithField("url", req.URL).Debug("Skipping CONNECT request")
		return
	}

	loaded := p.manager.Plugins()
	if len(loaded) == 0 {
		p.logger.WithField("request_id", req.ID).Debug("No plugins loaded, request kept for correlation only")
		return
	}

	for _, instance := range loaded {
		if !instance.HandlesRequests() {
			continue
		}
		for _, f := range p.invoke(ctx, instance, scanRequestHook, req, nil) {
			p.attachRequestContext(f, req)
			p.emit(f)
		}
	}
}

func (p *Pipeline) processResponse(ctx context.Context, resp *types.ResponseContext) {
	req, ok := p.correlation.Remove(resp.RequestID)
	if !ok {
		p.logger.WithField("request_id", resp.RequestID).Debug("No cached request context for response")
		return
	}

	if p.trafficRepository != nil {
		p.recordTraffic(ctx, req, resp)
	}

	for _, instance := range p.manager.Plugins() {
		if !instance.HandlesResponses() {
			continue
		}
		for _, f := range p.invoke(ctx, instance, scanResponseHook, req, resp) {
			p.attachRequestContext(f, req)
			p.attachResponseContext(f, resp)
			p.emit(f)
		}
	}
}

// invoke runs one plugin hook and returns whatever findings the plugin
// managed to emit, even when the invocation itself failed.
func (p *Pipeline) invoke(
	ctx context.Context,
	instance pluginiface.ScanPlugin,
	hook string,
	req *types.RequestContext,
	resp *types.ResponseContext,
) []*types.Finding {
	pluginID := instance.Metadata().ID
	start := time.Now()

	var (
		findings []*types.Finding
		err      error
	)
	if hook == scanRequestHook {
		findings, err = instance.ScanRequest(ctx, req)
	} else {
		findings, err = instance.ScanResponse(ctx, req, resp)
	}

	if prometheus.Config.EnableInvocationLatency {
		prometheus.PluginInvocationLatency.WithLabelValues(pluginID, hook).Observe(float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		prometheus.PluginErrorsTotal.WithLabelValues(pluginID, hook).Inc()
		p.logger.WithError(err).WithFields(logrus.Fields{
			"plugin_id": pluginID,
			"hook":      hook,
		}).Error("Plugin invocation failed")
	}
	return findings
}

func (p *Pipeline) emit(f *types.Finding) {
	if err := p.findings.Push(f); err != nil {
		p.logger.WithError(err).WithField("plugin_id", f.PluginID).Error("Failed to enqueue finding")
		return
	}
	p.findingsEmitted.Add(1)
	prometheus.FindingsEmittedTotal.WithLabelValues(f.PluginID).Inc()
}

// The plugin supplies the detection fields only; the audit context comes
// from the dispatch loop so plugin code cannot forge it.
func (p *Pipeline) attachRequestContext(f *types.Finding, req *types.RequestContext) {
	f.URL = req.URL
	f.Method = req.Method
	f.RequestHeaders = headersToJSON(req.Headers)
	f.RequestBody = bodyToText(req.Body)
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
}

func (p *Pipeline) attachResponseContext(f *types.Finding, resp *types.ResponseContext) {
	f.ResponseStatus = resp.Status
	f.ResponseHeaders = headersToJSON(resp.Headers)
	f.ResponseBody = bodyToText(resp.Body)
}

func (p *Pipeline) recordTraffic(ctx context.Context, req *types.RequestContext, resp *types.ResponseContext) {
	record := p.buildTrafficRecord(req, resp)

	insert := func() error { return p.trafficRepository.InsertRecord(ctx, record) }
	var err error
	if p.breaker != nil {
		err = p.breaker.Execute(insert)
	} else {
		err = insert()
	}
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": req.ID,
			"url":        req.URL,
		}).Warn("Failed to persist traffic record")
		return
	}

	if p.publisher == nil {
		return
	}
	evt := event.TrafficRecordedEvent{Record: *record}
	if err := p.publisher.Publish(ctx, channel.TrafficRecordEventsChannel, evt); err != nil {
		p.logger.WithError(err).WithField("record_id", record.ID.String()).Warn("Failed to publish traffic record event")
	}
}

func (p *Pipeline) buildTrafficRecord(req *types.RequestContext, resp *types.ResponseContext) *traffic.Record {
	host := "unknown"
	protocol := "http"
	path := "/"
	if u, err := url.Parse(req.URL); err == nil {
		if h := u.Hostname(); h != "" {
			host = h
		}
		if u.Scheme != "" {
			protocol = u.Scheme
		}
		if u.Path != "" {
			path = u.Path
		}
	}

	responseTime := resp.Timestamp.Sub(req.Timestamp).Milliseconds()
	if responseTime < 0 {
		responseTime = 0
	}

	// The audit record stores the decoded body; ResponseSize keeps the raw
	// size as it went over the wire.
	responseBody := resp.Body
	if encoding := headerValue(resp.Headers, "Content-Encoding"); encoding != "" {
		decoded, changed, err := httpx.DecodeChain(encoding, resp.Body)
		if err != nil {
			p.logger.WithError(err).WithField("content_encoding", encoding).Debug("Keeping raw response body, decode failed")
		} else if changed {
			responseBody = decoded
		}
	}

	record := &traffic.Record{
		URL:             req.URL,
		Host:            host,
		Protocol:        protocol,
		Path:            path,
		Method:          req.Method,
		StatusCode:      resp.Status,
		RequestHeaders:  headersToJSON(req.Headers),
		RequestBody:     bodyToText(req.Body),
		ResponseHeaders: headersToJSON(resp.Headers),
		ResponseBody:    bodyToText(responseBody),
		ResponseSize:    int64(len(resp.Body)),
		ResponseTimeMs:  responseTime,
		Timestamp:       req.Timestamp,
	}

	if req.WasEdited {
		record.WasEdited = true
		record.EditedMethod = req.EditedMethod
		record.EditedURL = req.EditedURL
		record.EditedRequestHeaders = editedHeaderLines(req.EditedHeaders)
		record.EditedRequestBody = editedBodyText(req.EditedBody)
	}
	if resp.WasEdited {
		record.EditedStatusCode = resp.EditedStatus
		record.EditedResponseHeaders = editedHeaderLines(resp.EditedHeaders)
		record.EditedResponseBody = editedBodyText(resp.EditedBody)
	}

	return record
}

func (p *Pipeline) TasksProcessed() uint64 {
	return p.tasksProcessed.Load()
}

func (p *Pipeline) FindingsEmitted() uint64 {
	return p.findingsEmitted.Load()
}

func (p *Pipeline) CorrelationEntries() int {
	return p.correlation.Len()
}

// bodyToText renders a body for storage: plain text when the bytes are
// valid UTF-8, otherwise base64 behind the "[BASE64]" prefix.
func bodyToText(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if utf8.Valid(body) {
		return string(body)
	}
	return "[BASE64]" + base64.StdEncoding.EncodeToString(body)
}

func headersToJSON(headers map[string]string) string {
	if len(headers) == 0 {
		return "{}"
	}
	data, err := json.Marshal(headers)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// editedHeaderLines renders interceptor-edited headers the way they were
// shown in the editor, one "Name: value" line per header.
func editedHeaderLines(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+headers[k])
	}
	return strings.Join(lines, "\r\n")
}

// editedBodyText keeps edited bodies only when they are readable text.
func editedBodyText(body []byte) string {
	if len(body) == 0 || !utf8.Valid(body) {
		return ""
	}
	return string(body)
}
