// Package schedulersvc runs the periodic fee jobs.
package schedulersvc

import (
	"context"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/masomo/feeledger/core"
)

const jobTimeout = 5 * time.Minute

// StatusRefresher re-derives ledger statuses (overdue detection) and returns how many changed.
type StatusRefresher interface {
	RefreshStatuses(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron      *cron.Cron
	refresher StatusRefresher
	logger    core.Logger
}

// New registers the overdue refresh job on conf.Fees.OverdueRefreshSpec. An empty spec disables it.
func New(conf *core.Config, refresher StatusRefresher, logger core.Logger) (*Scheduler, error) {
	vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(refresher, "refresher"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	loc := conf.Fees.Location
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		refresher: refresher,
		logger:    logger,
	}
	if spec := conf.Fees.OverdueRefreshSpec; spec != "" {
		if _, err := s.cron.AddFunc(spec, s.RefreshStatuses); err != nil {
			return nil, errors.Wrapf(err, "scheduling status refresh (%q)", spec)
		}
	}
	return s, nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits (until ctx is done) for running jobs to complete.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return core.NewShutdownError("scheduler jobs did not complete in time")
	}
}

// RefreshStatuses is the overdue refresh job.
func (s *Scheduler) RefreshStatuses() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.refresher.RefreshStatuses(ctx)
	if err != nil {
		s.logger.Error("scheduler: refreshing ledger statuses: "+err.Error(), err)
		return
	}
	if n > 0 {
		s.logger.Info(fmt.Sprintf("scheduler: %d ledger status(es) refreshed", n))
	}
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvMap(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg+": "+err.Error(), err, kvMap(keysAndValues))
}

func kvMap(keysAndValues []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		m[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return m
}
