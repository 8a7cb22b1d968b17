package types

// TaskKind discriminates the variants of a ScanTask.
type TaskKind string

const (
	TaskRequest      TaskKind = "request"
	TaskResponse     TaskKind = "response"
	TaskReloadPlugin TaskKind = "reload_plugin"
)

// ScanTask is one unit of work for the scan pipeline. Exactly one of the
// payload fields matching Kind is set; a task is consumed exactly once.
type ScanTask struct {
	Kind     TaskKind
	Request  *RequestContext
	Response *ResponseContext
	PluginID string
}

func NewRequestTask(ctx *RequestContext) ScanTask {
	return ScanTask{Kind: TaskRequest, Request: ctx}
}

func NewResponseTask(ctx *ResponseContext) ScanTask {
	return ScanTask{Kind: TaskResponse, Response: ctx}
}

func NewReloadPluginTask(pluginID string) ScanTask {
	return ScanTask{Kind: TaskReloadPlugin, PluginID: pluginID}
}
