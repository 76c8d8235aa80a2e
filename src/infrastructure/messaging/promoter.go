package messaging

import (
	"context"
	"time"

	logger "go-wa-campaign-api/src/infrastructure/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobPromoter claims scheduled jobs that came due and jobs whose lease expired
type JobPromoter interface {
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	ResumeStale(ctx context.Context, now time.Time) (int, error)
}

// Promoter drives a JobPromoter on a cron schedule
type Promoter struct {
	scheduler JobPromoter
	cron      *cron.Cron
	Logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// cronLogger routes robfig/cron's own logging through zap
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

func NewPromoter(scheduler JobPromoter, schedule string, loggerInstance *logger.Logger) (*Promoter, error) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Promoter{scheduler: scheduler, Logger: loggerInstance, ctx: ctx, cancel: cancel}

	cl := cronLogger{log: loggerInstance.Log.Sugar()}
	p.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := p.cron.AddFunc(schedule, p.Tick); err != nil {
		cancel()
		return nil, err
	}
	return p, nil
}

// Tick runs one promotion pass
func (p *Promoter) Tick() {
	now := time.Now().UTC()
	if _, err := p.scheduler.PromoteDue(p.ctx, now); err != nil {
		p.Logger.Error("Error promoting scheduled jobs", zap.Error(err))
	}
	if _, err := p.scheduler.ResumeStale(p.ctx, now); err != nil {
		p.Logger.Error("Error resuming stale jobs", zap.Error(err))
	}
}

func (p *Promoter) Start() {
	p.Logger.Info("Starting job promoter")
	p.cron.Start()
}

// Stop waits for a running tick to return
func (p *Promoter) Stop() {
	p.cancel()
	<-p.cron.Stop().Done()
	p.Logger.Info("Job promoter stopped")
}
