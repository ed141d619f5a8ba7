package main

import (
	"context"

	"github.com/robfig/cron/v3"

	"studyplan/internal/calsync"
	"studyplan/internal/config"
	appLog "studyplan/internal/log"
	"studyplan/internal/planner"
)

// cronLogger routes cron's own messages into the app log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}

// newScheduler registers the maintenance jobs. A schedule of "-" disables a job;
// overlapping runs of the same job are skipped.
func newScheduler(conf *config.Config, svc *planner.Service, syncer *calsync.Syncer) (*cron.Cron, error) {
	c := cron.New(
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)

	if conf.DedupCron != "-" {
		_, err := c.AddFunc(conf.DedupCron, func() {
			if _, err := svc.Deduplicate(context.Background(), ""); err != nil {
				appLog.Error("scheduled dedup failed", err)
			}
		})
		if err != nil {
			return nil, err
		}
		appLog.Info("dedup job scheduled", "spec", conf.DedupCron)
	}

	sources := conf.Sources()
	if conf.ImportCron != "-" && len(sources) > 0 {
		_, err := c.AddFunc(conf.ImportCron, func() {
			syncer.SyncAll(context.Background(), sources)
		})
		if err != nil {
			return nil, err
		}
		appLog.Info("calendar import scheduled", "spec", conf.ImportCron, "calendars", len(sources))
	}
	return c, nil
}
