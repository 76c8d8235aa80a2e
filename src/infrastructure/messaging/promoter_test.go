package messaging

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logger "go-wa-campaign-api/src/infrastructure/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockJobPromoter struct {
	promoted int32
	resumed  int32
	err      error
}

func (m *mockJobPromoter) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	atomic.AddInt32(&m.promoted, 1)
	return 0, m.err
}

func (m *mockJobPromoter) ResumeStale(ctx context.Context, now time.Time) (int, error) {
	atomic.AddInt32(&m.resumed, 1)
	return 0, m.err
}

func TestPromoter_TickRunsBothPasses(t *testing.T) {
	scheduler := &mockJobPromoter{err: errors.New("db down")}
	p, err := NewPromoter(scheduler, "@every 1h", logger.NewNopLogger())
	require.NoError(t, err)

	p.Tick()
	assert.Equal(t, int32(1), atomic.LoadInt32(&scheduler.promoted))
	assert.Equal(t, int32(1), atomic.LoadInt32(&scheduler.resumed))
}

func TestPromoter_RunsOnSchedule(t *testing.T) {
	scheduler := &mockJobPromoter{}
	p, err := NewPromoter(scheduler, "@every 1s", logger.NewNopLogger())
	require.NoError(t, err)

	p.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&scheduler.promoted) > 0 }, 3*time.Second, 50*time.Millisecond)
	p.Stop()
}

func TestPromoter_InvalidSchedule(t *testing.T) {
	_, err := NewPromoter(&mockJobPromoter{}, "every now and then", logger.NewNopLogger())
	assert.Error(t, err)
}
