package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/chimeo/internal/alerts"
	"github.com/hugh/chimeo/internal/database/models"
	"github.com/hugh/chimeo/internal/followers"
	"github.com/hugh/chimeo/internal/metrics"
	"github.com/hugh/chimeo/internal/organizations"
	"github.com/hugh/chimeo/internal/push"
	"github.com/hugh/chimeo/internal/storage"
	"github.com/hugh/chimeo/internal/testutil"
	"github.com/hugh/chimeo/pkg/queue"
	"github.com/hugh/chimeo/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPush struct {
	mu     sync.Mutex
	tokens []string
}

func (p *recordingPush) Send(_ context.Context, token string, _ push.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = append(p.tokens, token)
	return nil
}

type enqueued struct {
	task *asynq.Task
	opts []asynq.Option
}

type fakeClient struct {
	tasks []enqueued
	err   error
}

func (c *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, enqueued{task: task, opts: opts})
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type handlerSetup struct {
	*testutil.TestSetup
	handler   *Handler
	alerts    *alerts.Service
	followers *followers.Store
	push      *recordingPush
	queue     *fakeClient
}

func newHandlerSetup(t *testing.T) *handlerSetup {
	t.Helper()
	ts := testutil.NewTestContext(t)
	logger := util.DiscardLogger()
	m := metrics.New()

	dir := organizations.NewDirectory(ts.DB, organizations.NewMemoryCache(time.Minute), storage.NewMemory(""), nil, logger)
	fs := followers.NewStore(ts.DB, logger, m)
	p := &recordingPush{}
	queue := &fakeClient{}
	svc := alerts.NewService(alerts.Deps{
		DB:        ts.DB,
		Directory: dir,
		Followers: fs,
		Push:      p,
		Store:     storage.NewMemory(""),
		Enqueuer:  &Enqueuer{client: queue},
		Metrics:   m,
		Logger:    logger,
	}, alerts.Config{})

	return &handlerSetup{
		TestSetup: ts,
		handler:   NewHandler(svc, fs, logger),
		alerts:    svc,
		followers: fs,
		push:      p,
		queue:     queue,
	}
}

func TestHandleAlertFanOut(t *testing.T) {
	setup := newHandlerSetup(t)
	ctx := testutil.TestContext(t)

	follower := testutil.CreateTestUser(t, setup.DB)
	require.NoError(t, setup.followers.Follow(ctx, follower.ID, setup.Org.ID))

	alert, err := setup.alerts.Post(testutil.ContextFor(t, setup.Admin), alerts.PostInput{
		OrganizationID: setup.Org.ID,
		Title:          "Road closed",
		Description:    "Main St closed between 1st and 4th.",
		Severity:       models.SeverityMedium,
	})
	require.NoError(t, err)

	task, err := NewAlertFanOutTask(AlertFanOutPayload{AlertID: alert.ID})
	require.NoError(t, err)
	require.NoError(t, setup.handler.HandleAlertFanOut(ctx, task))

	assert.Equal(t, []string{follower.PushToken}, setup.push.tokens)
}

func TestHandleAlertFanOut_InvalidPayload(t *testing.T) {
	setup := newHandlerSetup(t)

	task := asynq.NewTask(TypeAlertFanOut, []byte("invalid json"))
	err := setup.handler.HandleAlertFanOut(context.Background(), task)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal payload")
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleAlertFanOut_DeletedAlert(t *testing.T) {
	setup := newHandlerSetup(t)

	task, err := NewAlertFanOutTask(AlertFanOutPayload{AlertID: uuid.New()})
	require.NoError(t, err)
	assert.NoError(t, setup.handler.HandleAlertFanOut(testutil.TestContext(t), task))
	assert.Empty(t, setup.push.tokens)
}

func TestHandleSchedulerTick(t *testing.T) {
	setup := newHandlerSetup(t)
	at := time.Now().UTC().Add(time.Hour)

	_, err := setup.alerts.CreateSchedule(testutil.ContextFor(t, setup.Admin), alerts.ScheduleInput{
		PostInput: alerts.PostInput{
			OrganizationID: setup.Org.ID,
			Title:          "Leaf pickup",
			Description:    "Curbside leaf pickup starts Monday.",
			Severity:       models.SeverityLow,
		},
		ScheduledFor: at,
	})
	require.NoError(t, err)

	setup.handler.now = func() time.Time { return at.Add(time.Minute) }
	require.NoError(t, setup.handler.HandleSchedulerTick(testutil.TestContext(t), NewSchedulerTickTask()))

	list, err := setup.alerts.ListForOrganization(testutil.TestContext(t), setup.Org.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Leaf pickup", list[0].Title)

	require.Len(t, setup.queue.tasks, 1)
	assert.Equal(t, TypeAlertFanOut, setup.queue.tasks[0].task.Type())
}

func TestHandleFollowersSync(t *testing.T) {
	setup := newHandlerSetup(t)
	ctx := testutil.TestContext(t)

	user := testutil.CreateTestUser(t, setup.DB)
	testutil.CreateTestFollow(t, setup.DB, user.ID, setup.Org.ID)

	t.Run("single organization", func(t *testing.T) {
		task, err := NewFollowersSyncTask(FollowersSyncPayload{OrganizationID: setup.Org.ID})
		require.NoError(t, err)
		require.NoError(t, setup.handler.HandleFollowersSync(ctx, task))

		var org models.Organization
		require.NoError(t, setup.DB.First(&org, "id = ?", setup.Org.ID).Error)
		assert.Equal(t, int64(1), org.FollowerCount)
	})

	t.Run("all organizations", func(t *testing.T) {
		other := testutil.CreateTestOrg(t, setup.DB, "Other Org")
		testutil.CreateTestFollow(t, setup.DB, user.ID, other.ID)

		require.NoError(t, setup.handler.HandleFollowersSync(ctx, asynq.NewTask(TypeFollowersSync, nil)))

		var org models.Organization
		require.NoError(t, setup.DB.First(&org, "id = ?", other.ID).Error)
		assert.Equal(t, int64(1), org.FollowerCount)
	})

	t.Run("unknown organization", func(t *testing.T) {
		task, err := NewFollowersSyncTask(FollowersSyncPayload{OrganizationID: "missing"})
		require.NoError(t, err)
		assert.Error(t, setup.handler.HandleFollowersSync(ctx, task))
	})
}

func TestEnqueuer_EnqueueFanOut(t *testing.T) {
	c := &fakeClient{}
	e := &Enqueuer{client: c}
	id := uuid.New()

	require.NoError(t, e.EnqueueFanOut(context.Background(), id))
	require.Len(t, c.tasks, 1)
	assert.Equal(t, TypeAlertFanOut, c.tasks[0].task.Type())

	var payload AlertFanOutPayload
	require.NoError(t, json.Unmarshal(c.tasks[0].task.Payload(), &payload))
	assert.Equal(t, id, payload.AlertID)

	var queueName, taskID string
	for _, opt := range c.tasks[0].opts {
		switch opt.Type() {
		case asynq.QueueOpt:
			queueName = opt.Value().(string)
		case asynq.TaskIDOpt:
			taskID = opt.Value().(string)
		}
	}
	assert.Equal(t, queue.QueueCritical, queueName)
	assert.Equal(t, "fanout:"+id.String(), taskID)
}

func TestEnqueuer_Errors(t *testing.T) {
	t.Run("duplicate fan-out is ignored", func(t *testing.T) {
		e := &Enqueuer{client: &fakeClient{err: asynq.ErrTaskIDConflict}}
		assert.NoError(t, e.EnqueueFanOut(context.Background(), uuid.New()))
	})

	t.Run("broker failure is returned", func(t *testing.T) {
		e := &Enqueuer{client: &fakeClient{err: errors.New("connection refused")}}
		assert.Error(t, e.EnqueueFanOut(context.Background(), uuid.New()))
		assert.Error(t, e.EnqueueFollowersSync(context.Background(), ""))
	})

	t.Run("followers sync goes to low queue", func(t *testing.T) {
		c := &fakeClient{}
		e := &Enqueuer{client: c}
		require.NoError(t, e.EnqueueFollowersSync(context.Background(), "org-1"))
		require.Len(t, c.tasks, 1)
		assert.Equal(t, TypeFollowersSync, c.tasks[0].task.Type())
	})
}
