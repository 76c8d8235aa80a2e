package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-wa-campaign-api/src/domain/gateway"
	domainMassMessage "go-wa-campaign-api/src/domain/massmessage"
	logger "go-wa-campaign-api/src/infrastructure/logger"
	"go-wa-campaign-api/src/infrastructure/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	instanceID string
	phone      string
	text       string
}

type fakeGateway struct {
	mu           sync.Mutex
	connected    bool
	connectedErr error
	failing      map[string]bool
	sent         []sentMessage
	settings     []string
	inFlight     int
	maxInFlight  int
	sendDelay    time.Duration
}

func (g *fakeGateway) CreateGroup(ctx context.Context, instanceID string, spec gateway.GroupSpec) (*gateway.CreatedGroup, error) {
	return nil, errors.New("not used")
}

func (g *fakeGateway) AddMember(ctx context.Context, instanceID, externalGroupID, phone string) error {
	return errors.New("not used")
}

func (g *fakeGateway) UpdateGroupSettings(ctx context.Context, instanceID, externalGroupID string, settings gateway.GroupSettings) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing[externalGroupID] {
		return errors.New("group not found")
	}
	g.settings = append(g.settings, externalGroupID)
	return nil
}

func (g *fakeGateway) SendMessage(ctx context.Context, instanceID, phone, text string) error {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	g.mu.Unlock()
	if g.sendDelay > 0 {
		time.Sleep(g.sendDelay)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight--
	g.sent = append(g.sent, sentMessage{instanceID: instanceID, phone: phone, text: text})
	if g.failing[phone] {
		return errors.New("number is not on whatsapp")
	}
	return nil
}

func (g *fakeGateway) IsConnected(ctx context.Context, instanceID string) (bool, error) {
	return g.connected, g.connectedErr
}

type recordingNotifier struct {
	mu          sync.Mutex
	completions []Completion
}

func (n *recordingNotifier) Notify(ctx context.Context, completion Completion) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completions = append(n.completions, completion)
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.sleeps = append(s.sleeps, d)
	}
	return ctx.Err()
}

func (s *sleepRecorder) total() time.Duration {
	var total time.Duration
	for _, d := range s.sleeps {
		total += d
	}
	return total
}

func newTestDispatcher(store *memory.JobStore, gw *fakeGateway, notifier CompletionNotifier) (*Dispatcher, *sleepRecorder) {
	d := NewDispatcher(store, store, gw, NewInstanceGate(0), notifier, DispatcherConfig{Workers: 2, QueueSize: 4}, logger.NewNopLogger())
	recorder := &sleepRecorder{}
	d.sleep = recorder.sleep
	return d, recorder
}

func intPtr(v int) *int { return &v }

func processingJob(t *testing.T, store *memory.JobStore, job domainMassMessage.MassMessageJob, recipients []domainMassMessage.Recipient) *domainMassMessage.MassMessageJob {
	t.Helper()
	job.CompanyID = 1
	job.InstanceID = "main"
	job.ClaimedBy = "node-a"
	job.TotalRecipients = len(recipients)
	if job.Message.Type == "" {
		job.Message = domainMassMessage.Message{Type: domainMassMessage.MessageTemplate, Content: "Hi {name} ({phone})"}
	}
	created, err := store.CreateWithRecipients(&job, recipients)
	require.NoError(t, err)
	now := time.Now().UTC()
	store.SetStatus(created.ID, domainMassMessage.StatusProcessing, nil, &now)
	created.Status = domainMassMessage.StatusProcessing
	return created
}

func manualRecipients(phones ...string) []domainMassMessage.Recipient {
	out := make([]domainMassMessage.Recipient, len(phones))
	for i, p := range phones {
		out[i] = domainMassMessage.Recipient{Phone: p}
	}
	return out
}

func TestRun_RecordsFailuresAndCompletes(t *testing.T) {
	store := memory.NewJobStore()
	gw := &fakeGateway{connected: true, failing: map[string]bool{"5511900000003": true}}
	notifier := &recordingNotifier{}
	d, _ := newTestDispatcher(store, gw, notifier)
	job := processingJob(t, store, domainMassMessage.MassMessageJob{},
		manualRecipients("5511900000001", "5511900000002", "5511900000003", "5511900000004", "5511900000005"))

	require.NoError(t, d.Run(context.Background(), job))

	stored, _ := store.GetByID(job.ID)
	assert.Equal(t, domainMassMessage.StatusCompleted, stored.Status)
	assert.Equal(t, 5, stored.SentCount)
	assert.NotNil(t, stored.CompletedAt)
	counts, _ := store.Counts(job.ID)
	assert.Equal(t, domainMassMessage.DeliveryCounts{Sent: 4, Errored: 1}, counts)
	assert.Len(t, gw.sent, 5)
	assert.Equal(t, "Hi  (5511900000001)", gw.sent[0].text)

	require.Len(t, notifier.completions, 1)
	assert.Equal(t, Completion{JobID: job.ID, CompanyID: 1, Status: domainMassMessage.StatusCompleted, SentCount: 5, ErrorCount: 1}, notifier.completions[0])
}

func TestRun_GroupDelays(t *testing.T) {
	store := memory.NewJobStore()
	gw := &fakeGateway{connected: true}
	d, sleeps := newTestDispatcher(store, gw, nil)
	job := processingJob(t, store, domainMassMessage.MassMessageJob{DelayBetweenGroupsSeconds: 10, DelayBetweenMessagesSeconds: 2},
		[]domainMassMessage.Recipient{
			{Phone: "1001", GroupID: intPtr(1)},
			{Phone: "2001", GroupID: intPtr(2)},
			{Phone: "1002", GroupID: intPtr(1)},
			{Phone: "3001", GroupID: intPtr(3)},
			{Phone: "2002", GroupID: intPtr(2)},
		})

	require.NoError(t, d.Run(context.Background(), job))

	phones := make([]string, len(gw.sent))
	for i, m := range gw.sent {
		phones[i] = m.phone
	}
	assert.Equal(t, []string{"1001", "1002", "2001", "2002", "3001"}, phones)
	assert.Equal(t, []time.Duration{2 * time.Second, 10 * time.Second, 2 * time.Second, 10 * time.Second}, sleeps.sleeps)
	assert.Equal(t, 24*time.Second, sleeps.total())
}

func TestRun_UngroupedRecipientsFormOneBucket(t *testing.T) {
	store := memory.NewJobStore()
	gw := &fakeGateway{connected: true}
	d, sleeps := newTestDispatcher(store, gw, nil)
	job := processingJob(t, store, domainMassMessage.MassMessageJob{DelayBetweenGroupsSeconds: 10},
		manualRecipients("1", "2", "3"))

	require.NoError(t, d.Run(context.Background(), job))
	assert.Empty(t, sleeps.sleeps)
	assert.Len(t, gw.sent, 3)
}

func TestRun_ResumeSkipsProcessedRecipients(t *testing.T) {
	store := memory.NewJobStore()
	gw := &fakeGateway{connected: true}
	d, sleeps := newTestDispatcher(store, gw, nil)
	job := processingJob(t, store, domainMassMessage.MassMessageJob{DelayBetweenGroupsSeconds: 10},
		[]domainMassMessage.Recipient{
			{Phone: "1001", GroupID: intPtr(1)},
			{Phone: "1002", GroupID: intPtr(1)},
			{Phone: "2001", GroupID: intPtr(2)},
		})
	records, _ := store.ListByJob(job.ID)
	for _, r := range (*records)[:2] {
		_, err := store.RecordOutcome(job.ID, r.ID, domainMassMessage.DeliverySent, "", time.Now())
		require.NoError(t, err)
	}

	require.NoError(t, d.Run(context.Background(), job))

	require.Len(t, gw.sent, 1)
	assert.Equal(t, "2001", gw.sent[0].phone)
	assert.Empty(t, sleeps.sleeps)
	stored, _ := store.GetByID(job.ID)
	assert.Equal(t, 3, stored.SentCount)
	assert.Equal(t, domainMassMessage.StatusCompleted, stored.Status)
}

func TestRun_InstanceNotConnectedFailsJob(t *testing.T) {
	store := memory.NewJobStore()
	gw := &fakeGateway{connected: false}
	notifier := &recordingNotifier{}
	d, _ := newTestDispatcher(store, gw, notifier)
	job := processingJob(t, store, domainMassMessage.MassMessageJob{}, manualRecipients("1", "2"))

	require.NoError(t, d.Run(context.Background(), job))

	stored, _ := store.GetByID(job.ID)
	assert.Equal(t, domainMassMessage.StatusFailed, stored.Status)
	assert.Contains(t, stored.FailureReason, "not connected")
	assert.Empty(t, gw.sent)
	require.Len(t, notifier.completions, 1)
	assert.Equal(t, domainMassMessage.StatusFailed, notifier.completions[0].Status)
}

func TestRun_CancelledContextLeavesJobProcessing(t *testing.T) {
	store := memory.NewJobStore()
	gw := &fakeGateway{connected: true}
	d, _ := newTestDispatcher(store, gw, nil)
	ctx, cancel := context.WithCancel(context.Background())
	d.sleep = func(ctx context.Context, duration time.Duration) error {
		if duration > 0 {
			cancel()
		}
		return ctx.Err()
	}
	job := processingJob(t, store, domainMassMessage.MassMessageJob{DelayBetweenMessagesSeconds: 1}, manualRecipients("1", "2", "3"))

	err := d.Run(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)

	stored, _ := store.GetByID(job.ID)
	assert.Equal(t, domainMassMessage.StatusProcessing, stored.Status)
	assert.Equal(t, 1, stored.SentCount)
}

func TestDispatch_IgnoresJobAlreadyQueued(t *testing.T) {
	store := memory.NewJobStore()
	d, _ := newTestDispatcher(store, &fakeGateway{connected: true}, nil)
	job := processingJob(t, store, domainMassMessage.MassMessageJob{}, manualRecipients("1"))

	require.NoError(t, d.Dispatch(job))
	require.NoError(t, d.Dispatch(job))
	assert.Len(t, d.queue, 1)
}

func TestDispatch_QueueFull(t *testing.T) {
	store := memory.NewJobStore()
	d, _ := newTestDispatcher(store, &fakeGateway{connected: true}, nil)
	for i := 1; i <= 4; i++ {
		require.NoError(t, d.Dispatch(&domainMassMessage.MassMessageJob{ID: i}))
	}
	assert.ErrorIs(t, d.Dispatch(&domainMassMessage.MassMessageJob{ID: 5}), ErrQueueFull)
}

func TestDispatcher_WorkersRunQueuedJobs(t *testing.T) {
	store := memory.NewJobStore()
	gw := &fakeGateway{connected: true}
	d, _ := newTestDispatcher(store, gw, nil)
	first := processingJob(t, store, domainMassMessage.MassMessageJob{}, manualRecipients("1", "2"))
	second := processingJob(t, store, domainMassMessage.MassMessageJob{}, manualRecipients("3"))

	d.Start()
	defer d.Shutdown()
	require.NoError(t, d.Dispatch(first))
	require.NoError(t, d.Dispatch(second))

	assert.Eventually(t, func() bool {
		a, _ := store.GetByID(first.ID)
		b, _ := store.GetByID(second.ID)
		return a.Status == domainMassMessage.StatusCompleted && b.Status == domainMassMessage.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	// concurrent jobs on one instance never overlap their sends
	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Equal(t, 1, gw.maxInFlight)
}

func TestRun_TwoNodesSendEachRecipientOnce(t *testing.T) {
	store := memory.NewJobStore()
	gw := &fakeGateway{connected: true}
	nodeA, _ := newTestDispatcher(store, gw, nil)
	nodeB, _ := newTestDispatcher(store, gw, nil)
	job := processingJob(t, store, domainMassMessage.MassMessageJob{},
		manualRecipients("5511900000001", "5511900000002", "5511900000003", "5511900000004", "5511900000005"))
	// node-a's copy waited in its queue until the lease went stale
	stalled := time.Now().UTC().Add(-time.Hour)
	store.SetStatus(job.ID, domainMassMessage.StatusProcessing, nil, &stalled)

	now := time.Now().UTC()
	claimed, err := store.ClaimLease(job.ID, "node-b", now.Add(-time.Minute), now)
	require.NoError(t, err)
	require.True(t, claimed)
	resumed := *job
	resumed.ClaimedBy = "node-b"

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs[0] = nodeA.Run(context.Background(), job) }()
	go func() { defer wg.Done(); errs[1] = nodeB.Run(context.Background(), &resumed) }()
	wg.Wait()

	assert.ErrorIs(t, errs[0], ErrLeaseLost)
	assert.NoError(t, errs[1])
	assert.Len(t, gw.sent, 5)
	stored, _ := store.GetByID(job.ID)
	assert.Equal(t, domainMassMessage.StatusCompleted, stored.Status)
	assert.Equal(t, 5, stored.SentCount)
}

func TestRun_StopsWhenLeaseTakenOver(t *testing.T) {
	store := memory.NewJobStore()
	gw := &fakeGateway{connected: true}
	d := NewDispatcher(store, store, gw, NewInstanceGate(0), nil,
		DispatcherConfig{Workers: 1, QueueSize: 1, HeartbeatInterval: 5 * time.Millisecond}, logger.NewNopLogger())
	job := processingJob(t, store, domainMassMessage.MassMessageJob{DelayBetweenMessagesSeconds: 1}, manualRecipients("1", "2", "3"))
	d.sleep = func(ctx context.Context, duration time.Duration) error {
		if duration > 0 {
			now := time.Now().UTC()
			_, _ = store.ClaimLease(job.ID, "node-b", now.Add(time.Hour), now)
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
		}
		return ctx.Err()
	}

	err := d.Run(context.Background(), job)

	assert.ErrorIs(t, err, ErrLeaseLost)
	assert.Len(t, gw.sent, 1)
	stored, _ := store.GetByID(job.ID)
	assert.Equal(t, domainMassMessage.StatusProcessing, stored.Status)
	assert.Equal(t, "node-b", stored.ClaimedBy)
}
