package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// JobScheduler runs the periodic CA maintenance jobs. Every job gets its own
// cron entry and a job never overlaps with a still running instance of
// itself.
type JobScheduler struct {
	scheduler *cron.Cron
	logger    *logrus.Entry
	entries   map[string]cron.EntryID
}

func NewJobScheduler(logger *logrus.Entry) *JobScheduler {
	return &JobScheduler{
		scheduler: cron.New(
			cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger:  logger,
		entries: map[string]cron.EntryID{},
	}
}

func (js *JobScheduler) Schedule(name string, frequency string, job cron.Job) error {
	if job == nil {
		return fmt.Errorf("job %s has nothing to run", name)
	}
	if _, ok := js.entries[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}

	js.logger.Infof("scheduling job %s with cron expression: '%s'", name, frequency)
	if strings.Count(strings.TrimSpace(frequency), " ") == 5 {
		js.logger.Warnf("job %s contains 'second level' scheduling. This may cause performance issues in production scenarios", name)
	}

	id, err := js.scheduler.AddJob(frequency, job)
	if err != nil {
		js.logger.Errorf("could not add scheduled run for job %s: %v", name, err)
		return err
	}

	js.entries[name] = id
	return nil
}

func (js *JobScheduler) Start() {
	js.scheduler.Start()
}

// NextRun is zero for unknown jobs and before the scheduler is started.
func (js *JobScheduler) NextRun(name string) time.Time {
	id, ok := js.entries[name]
	if !ok {
		return time.Time{}
	}
	return js.scheduler.Entry(id).Next
}

func (js *JobScheduler) Jobs() []string {
	names := make([]string, 0, len(js.entries))
	for name := range js.entries {
		names = append(names, name)
	}
	return names
}

// Stop waits for the running jobs to finish.
func (js *JobScheduler) Stop() {
	for name, id := range js.entries {
		js.scheduler.Remove(id)
		delete(js.entries, name)
	}
	<-js.scheduler.Stop().Done()
}
