// Package scheduler runs memnoded's background autosave job on a fixed
// interval, the same gocron-based pattern the teacher's taskmanager package
// uses for its own periodic workers.
package scheduler

import (
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/go-co-op/gocron/v2"
)

// Saver is whatever the autosave job should call on each tick; dispatch.Server
// satisfies it via a thin SaveNow method.
type Saver interface {
	SaveNow() error
}

var s gocron.Scheduler

// Start schedules a SaveNow call every interval and starts the scheduler.
// A zero or negative interval disables autosave (the caller should not call
// Start in that case; Start itself still guards against it defensively).
func Start(saver Saver, interval time.Duration) error {
	if interval <= 0 {
		cclog.Info("scheduler: autosave disabled, no interval configured")
		return nil
	}

	var err error
	s, err = gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := saver.SaveNow(); err != nil {
				cclog.Errorf("scheduler: autosave failed: %v", err)
			} else {
				cclog.Debugf("scheduler: autosave completed")
			}
		}),
	)
	if err != nil {
		return err
	}

	s.Start()
	cclog.Infof("scheduler: autosave running every %s", interval)
	return nil
}

// Shutdown stops the scheduler if it was started.
func Shutdown() {
	if s != nil {
		_ = s.Shutdown()
	}
}
