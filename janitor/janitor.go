/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package janitor runs periodic housekeeping of wireserver on cron schedules:
// sweeping idle rate limiter buckets, removing expired cache entries and logging the metrics summary.
package janitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/acronis/go-wireserver/log"
	"github.com/acronis/go-wireserver/service"
)

// JobFunc is a housekeeping task. The context is canceled when the janitor is stopped non-gracefully.
type JobFunc func(ctx context.Context)

// EntryInfo describes a scheduled job.
type EntryInfo struct {
	Name     string
	Schedule string
	Next     time.Time
}

type job struct {
	name     string
	schedule string
	fn       JobFunc
	entryID  cron.EntryID
}

// Janitor is a service.Unit that runs registered jobs on their schedules.
type Janitor struct {
	logger log.FieldLogger
	cron   *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]*job
	running bool
}

var _ service.Unit = (*Janitor)(nil)

// New creates a new Janitor. Logger can be nil.
func New(logger log.FieldLogger) *Janitor {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	cl := cronLogger{logger}
	j := &Janitor{
		logger: logger,
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		jobs:   make(map[string]*job),
	}
	j.ctx, j.cancel = context.WithCancel(context.Background())
	return j
}

// AddJob schedules fn with a standard cron expression or a descriptor like "@every 1m".
// An empty schedule leaves the job disabled.
func (j *Janitor) AddJob(name, schedule string, fn JobFunc) error {
	if schedule == "" {
		j.logger.Info("janitor job is disabled", log.String("job", name))
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.jobs[name]; exists {
		return fmt.Errorf("janitor job %q is already registered", name)
	}
	jb := &job{name: name, schedule: schedule, fn: fn}
	id, err := j.cron.AddFunc(schedule, func() { j.run(jb) })
	if err != nil {
		return fmt.Errorf("schedule janitor job %q (%s): %w", name, schedule, err)
	}
	jb.entryID = id
	j.jobs[name] = jb
	return nil
}

// RunJob runs the named job synchronously, outside of its schedule.
func (j *Janitor) RunJob(name string) bool {
	j.mu.Lock()
	jb, ok := j.jobs[name]
	j.mu.Unlock()
	if !ok {
		return false
	}
	j.run(jb)
	return true
}

func (j *Janitor) run(jb *job) {
	start := time.Now()
	jb.fn(j.ctx)
	j.logger.Debug("janitor job finished", log.String("job", jb.name), log.DurationIn(time.Since(start), time.Millisecond))
}

// Start starts the scheduler. It returns immediately.
func (j *Janitor) Start(_ chan<- error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	j.cron.Start()
	j.running = true
	j.logger.Info("janitor started", log.Int("jobs", len(j.jobs)))
}

// Stop stops the scheduler. With gracefully it waits for running jobs, otherwise it cancels them.
func (j *Janitor) Stop(gracefully bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !gracefully {
		j.cancel()
	}
	if !j.running {
		return nil
	}
	<-j.cron.Stop().Done()
	j.running = false
	j.logger.Info("janitor stopped")
	return nil
}

// Entries returns the scheduled jobs sorted by name.
func (j *Janitor) Entries() []EntryInfo {
	j.mu.Lock()
	defer j.mu.Unlock()
	infos := make([]EntryInfo, 0, len(j.jobs))
	for _, jb := range j.jobs {
		infos = append(infos, EntryInfo{Name: jb.name, Schedule: jb.schedule, Next: j.cron.Entry(jb.entryID).Next})
	}
	sort.Slice(infos, func(a, b int) bool { return infos[a].Name < infos[b].Name })
	return infos
}

// cronLogger adapts log.FieldLogger to cron.Logger.
type cronLogger struct {
	logger log.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keyValueFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keyValueFields(keysAndValues), log.Error(err))...)
}

func keyValueFields(keysAndValues []interface{}) []log.Field {
	fields := make([]log.Field, 0, len(keysAndValues)/2+1)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, log.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
