package event

type PluginReloadRequestedEvent struct {
	PluginID string `json:"plugin_id"`
}

func (e PluginReloadRequestedEvent) Type() string {
	return PluginReloadRequestedEventType
}
