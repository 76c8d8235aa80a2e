package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	domainErrors "go-wa-campaign-api/src/domain/errors"
	"go-wa-campaign-api/src/domain/gateway"
	domainMassMessage "go-wa-campaign-api/src/domain/massmessage"
	logger "go-wa-campaign-api/src/infrastructure/logger"
	massMessageRepo "go-wa-campaign-api/src/infrastructure/repository/database/massmessage"

	"go.uber.org/zap"
)

var (
	ErrQueueFull = errors.New("dispatch queue is full")
	// ErrLeaseLost is returned by Run when another node holds the job's lease
	ErrLeaseLost = errors.New("job lease is held by another node")
)

type DispatcherConfig struct {
	Workers           int
	QueueSize         int
	HeartbeatInterval time.Duration
}

// Dispatcher runs claimed mass-message jobs on a worker pool
type Dispatcher struct {
	jobRepository      massMessageRepo.JobRepositoryInterface
	deliveryRepository massMessageRepo.DeliveryRepositoryInterface
	gateway            gateway.IMessagingGateway
	gate               *InstanceGate
	notifier           CompletionNotifier
	config             DispatcherConfig
	Logger             *logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	queue   chan *domainMassMessage.MassMessageJob
	mu      sync.Mutex
	running map[int]bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewDispatcher(
	jobRepository massMessageRepo.JobRepositoryInterface,
	deliveryRepository massMessageRepo.DeliveryRepositoryInterface,
	gatewayClient gateway.IMessagingGateway,
	gate *InstanceGate,
	notifier CompletionNotifier,
	config DispatcherConfig,
	loggerInstance *logger.Logger,
) *Dispatcher {
	if config.Workers <= 0 {
		config.Workers = 5
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		jobRepository:      jobRepository,
		deliveryRepository: deliveryRepository,
		gateway:            gatewayClient,
		gate:               gate,
		notifier:           notifier,
		config:             config,
		Logger:             loggerInstance,
		sleep:              sleepContext,
		now:                func() time.Time { return time.Now().UTC() },
		queue:              make(chan *domainMassMessage.MassMessageJob, config.QueueSize),
		running:            map[int]bool{},
		ctx:                ctx,
		cancel:             cancel,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the worker pool
func (d *Dispatcher) Start() {
	d.Logger.Info("Starting dispatcher workers", zap.Int("workerCount", d.config.Workers))
	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			if err := d.Run(d.ctx, job); err != nil {
				d.Logger.Warn("Job run interrupted", zap.Error(err), zap.Int("jobID", job.ID), zap.Int("workerID", id))
			}
			d.mu.Lock()
			delete(d.running, job.ID)
			d.mu.Unlock()
		case <-d.ctx.Done():
			d.Logger.Info("Shutting down dispatcher worker", zap.Int("workerID", id))
			return
		}
	}
}

// Dispatch queues a claimed job. A job already queued or running on this
// process is ignored.
func (d *Dispatcher) Dispatch(job *domainMassMessage.MassMessageJob) error {
	if d.ctx.Err() != nil {
		return d.ctx.Err()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running[job.ID] {
		d.Logger.Debug("Job already running on this node", zap.Int("jobID", job.ID))
		return nil
	}
	select {
	case d.queue <- job:
		d.running[job.ID] = true
		return nil
	default:
		d.Logger.Warn("Dispatch queue is full, job not queued", zap.Int("jobID", job.ID))
		return ErrQueueFull
	}
}

// Run delivers the job to every recipient not yet processed. Returning early
// because ctx ended leaves the job processing so another claim can resume it.
func (d *Dispatcher) Run(ctx context.Context, job *domainMassMessage.MassMessageJob) error {
	log := d.Logger.With(zap.Int("jobID", job.ID), zap.String("instanceID", job.InstanceID))

	// The job may have waited in the queue past its lease; only the holder sends.
	owned, err := d.jobRepository.Heartbeat(job.ID, job.ClaimedBy, d.now())
	if err != nil {
		return err
	}
	if !owned {
		log.Warn("Job lease lost before run, skipping", zap.String("claimedBy", job.ClaimedBy))
		return ErrLeaseLost
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	connected, err := d.gateway.IsConnected(ctx, job.InstanceID)
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if err != nil || !connected {
		reason := "whatsapp instance is not connected"
		if err != nil {
			reason = reason + ": " + err.Error()
		}
		log.Warn("Failing job", zap.String("reason", reason))
		return d.finish(ctx, job, domainMassMessage.StatusFailed, map[string]interface{}{"failureReason": reason})
	}

	records, err := d.deliveryRepository.ListByJob(job.ID)
	if err != nil {
		return err
	}

	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go d.heartbeat(job, cancel, heartbeatDone)

	started := false
	for _, bucket := range domainMassMessage.BucketByGroup(*records) {
		first := true
		for _, record := range bucket.Records {
			if record.State != domainMassMessage.DeliveryPending {
				continue
			}
			delay := job.DelayBetweenMessagesSeconds
			if first {
				delay = 0
				if started {
					delay = job.DelayBetweenGroupsSeconds
				}
			}
			if err := d.sleep(ctx, time.Duration(delay)*time.Second); err != nil {
				return stopCause(ctx, err)
			}
			if err := d.deliver(ctx, job, record); err != nil {
				return stopCause(ctx, err)
			}
			first = false
			started = true
		}
	}

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return d.finish(ctx, job, domainMassMessage.StatusCompleted, nil)
}

// stopCause prefers the reason the run context was cancelled with
func stopCause(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return err
}

func (d *Dispatcher) deliver(ctx context.Context, job *domainMassMessage.MassMessageJob, record domainMassMessage.DeliveryRecord) error {
	text := domainMassMessage.Render(job.Message, domainMassMessage.RecipientValues(job.Variables, record))
	sendErr := d.gate.Do(ctx, job.InstanceID, func(ctx context.Context) error {
		return d.gateway.SendMessage(ctx, job.InstanceID, record.Phone, text)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}

	state, errMsg := domainMassMessage.DeliverySent, ""
	if sendErr != nil {
		state, errMsg = domainMassMessage.DeliveryFailed, sendErr.Error()
		d.Logger.Warn("Error sending message",
			zap.Error(domainErrors.NewAppError(sendErr, domainErrors.ExternalSendError)),
			zap.Int("jobID", job.ID),
			zap.String("phone", record.Phone))
	}

	if _, err := d.deliveryRepository.RecordOutcome(job.ID, record.ID, state, errMsg, d.now()); err != nil {
		d.Logger.Error("Error recording delivery outcome", zap.Error(err), zap.Int("jobID", job.ID), zap.Int("recordID", record.ID))
		return err
	}
	return nil
}

// heartbeat refreshes the lease and stops the run through cancel once the
// lease belongs to someone else.
func (d *Dispatcher) heartbeat(job *domainMassMessage.MassMessageJob, cancel context.CancelCauseFunc, done <-chan struct{}) {
	ticker := time.NewTicker(d.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			owned, err := d.jobRepository.Heartbeat(job.ID, job.ClaimedBy, d.now())
			if err != nil {
				d.Logger.Warn("Error refreshing job lease", zap.Error(err), zap.Int("jobID", job.ID))
				continue
			}
			if !owned {
				d.Logger.Warn("Job lease lost, stopping run", zap.Int("jobID", job.ID), zap.String("claimedBy", job.ClaimedBy))
				cancel(ErrLeaseLost)
				return
			}
		case <-done:
			return
		}
	}
}

func (d *Dispatcher) finish(ctx context.Context, job *domainMassMessage.MassMessageJob, status domainMassMessage.Status, fields map[string]interface{}) error {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["completedAt"] = d.now()
	moved, err := d.jobRepository.Transition(job.ID, domainMassMessage.StatusProcessing, status, fields)
	if err != nil {
		return err
	}
	if !moved {
		d.Logger.Info("Job already left processing", zap.Int("jobID", job.ID))
		return nil
	}
	job.Status = status

	counts, err := d.deliveryRepository.Counts(job.ID)
	if err != nil {
		d.Logger.Error("Error counting deliveries", zap.Error(err), zap.Int("jobID", job.ID))
	}
	d.Logger.Info("Job finished",
		zap.Int("jobID", job.ID),
		zap.String("status", string(status)),
		zap.Int("sent", counts.Sent),
		zap.Int("errors", counts.Errored))

	if d.notifier != nil {
		d.notifier.Notify(ctx, Completion{
			JobID:      job.ID,
			CompanyID:  job.CompanyID,
			Status:     status,
			SentCount:  counts.Sent + counts.Errored,
			ErrorCount: counts.Errored,
		})
	}
	return nil
}

// Shutdown stops the workers. Jobs in flight stay processing and are resumed
// once their lease goes stale.
func (d *Dispatcher) Shutdown() {
	d.Logger.Info("Shutting down dispatcher")
	d.cancel()
	d.wg.Wait()
	d.Logger.Info("Dispatcher shutdown complete")
}
