package subscriber_test

import (
	"context"
	"testing"
	"time"

	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelsec/sentinel-core/pkg/domain"
	"github.com/sentinelsec/sentinel-core/pkg/infra/cache/event"
	"github.com/sentinelsec/sentinel-core/pkg/infra/cache/subscriber"
	"github.com/sentinelsec/sentinel-core/pkg/queue"
	"github.com/sentinelsec/sentinel-core/pkg/types"
)

func popTask(t *testing.T, tasks *queue.Queue[types.ScanTask]) types.ScanTask {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	task, err := tasks.Pop(ctx)
	require.NoError(t, err)
	return task
}

func TestTrafficRequestEventSubscriber_OnEvent(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	tasks := queue.New[types.ScanTask](4, queue.Block)
	sub := subscriber.NewTrafficRequestEventSubscriber(logger, tasks)

	evt := event.TrafficRequestEvent{RequestContext: types.RequestContext{
		ID:     "req-1",
		Method: "GET",
		URL:    "https://target.example.com/",
	}}
	require.NoError(t, sub.OnEvent(context.Background(), evt))

	task := popTask(t, tasks)
	assert.Equal(t, types.TaskRequest, task.Kind)
	require.NotNil(t, task.Request)
	assert.Equal(t, "req-1", task.Request.ID)
}

func TestTrafficRequestEventSubscriber_DropsAnonymousEvents(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	tasks := queue.New[types.ScanTask](4, queue.Block)
	sub := subscriber.NewTrafficRequestEventSubscriber(logger, tasks)

	evt := event.TrafficRequestEvent{RequestContext: types.RequestContext{Method: "GET"}}
	require.NoError(t, sub.OnEvent(context.Background(), evt))
	assert.Equal(t, 0, tasks.Len())
}

func TestTrafficResponseEventSubscriber_OnEvent(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	tasks := queue.New[types.ScanTask](4, queue.Block)
	sub := subscriber.NewTrafficResponseEventSubscriber(logger, tasks)

	evt := event.TrafficResponseEvent{ResponseContext: types.ResponseContext{
		RequestID: "req-1",
		Status:    500,
		Body:      []byte("Fatal error"),
	}}
	require.NoError(t, sub.OnEvent(context.Background(), evt))

	task := popTask(t, tasks)
	assert.Equal(t, types.TaskResponse, task.Kind)
	require.NotNil(t, task.Response)
	assert.Equal(t, 500, task.Response.Status)
}

func TestPluginReloadRequestedEventSubscriber_OnEvent(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	tasks := queue.New[types.ScanTask](4, queue.Block)
	sub := subscriber.NewPluginReloadRequestedEventSubscriber(logger, tasks)

	evt := event.PluginReloadRequestedEvent{PluginID: "sqli-detector"}
	require.NoError(t, sub.OnEvent(context.Background(), evt))

	task := popTask(t, tasks)
	assert.Equal(t, types.TaskReloadPlugin, task.Kind)
	assert.Equal(t, "sqli-detector", task.PluginID)
}

func TestSubscribers_ReportClosedQueue(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	tasks := queue.New[types.ScanTask](1, queue.Block)
	tasks.Close()

	reqSub := subscriber.NewTrafficRequestEventSubscriber(logger, tasks)
	err := reqSub.OnEvent(context.Background(), event.TrafficRequestEvent{
		RequestContext: types.RequestContext{ID: "req-1"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrQueueClosed)

	reloadSub := subscriber.NewPluginReloadRequestedEventSubscriber(logger, tasks)
	err = reloadSub.OnEvent(context.Background(), event.PluginReloadRequestedEvent{PluginID: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrQueueClosed)
}
