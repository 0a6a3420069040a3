package schedulersvc

import (
	"context"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masomo/feeledger/core"
	"github.com/masomo/feeledger/services/logger"
)

type refresherMock struct {
	calls int32
	err   error
	block chan struct{}
}

func (m *refresherMock) RefreshStatuses(ctx context.Context) (int, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.block != nil {
		<-m.block
	}
	return 2, m.err
}

func newScheduler(t *testing.T, spec string, refresher StatusRefresher) *Scheduler {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Fees.OverdueRefreshSpec = spec
	s, err := New(conf, refresher, logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf))
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		wantJobs int
		wantErr  bool
	}{
		{"descriptor", "@every 1h", 1, false},
		{"standard", "*/15 * * * *", 1, false},
		{"disabled", "", 0, false},
		{"invalid", "every hour", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := core.NewTestConfig()
			conf.Fees.OverdueRefreshSpec = tt.spec
			s, err := New(conf, &refresherMock{}, logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantJobs, s.Jobs())
		})
	}
}

func TestScheduler_RefreshStatuses(t *testing.T) {
	m := &refresherMock{}
	s := newScheduler(t, "@every 1h", m)
	s.RefreshStatuses()
	assert.EqualValues(t, 1, atomic.LoadInt32(&m.calls))

	// failures are logged, never propagated
	m.err = errors.New("db down")
	assert.NotPanics(t, s.RefreshStatuses)
	assert.EqualValues(t, 2, atomic.LoadInt32(&m.calls))
}

func TestScheduler_Run(t *testing.T) {
	m := &refresherMock{}
	s := newScheduler(t, "@every 1s", m)
	s.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&m.calls) > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestScheduler_StopTimeout(t *testing.T) {
	m := &refresherMock{block: make(chan struct{})}
	defer close(m.block)
	s := newScheduler(t, "@every 1s", m)
	s.Start()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&m.calls) > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Stop(ctx)
	assert.True(t, core.IsShutdown(err), "err = %v", err)
}
