package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studyplan/internal/calsync"
	"studyplan/internal/config"
	appLog "studyplan/internal/log"
	"studyplan/internal/planner"
	"studyplan/internal/store"
	"studyplan/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	dedupOnce  bool
	owner      string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if lvl, ok := appLog.ParseLevel(conf.LogLevel); ok {
		appLog.SetLevel(lvl)
	} else {
		appLog.Warn("unknown log level, keeping default", "log_level", conf.LogLevel)
	}
	loc, err := conf.Location()
	if err != nil {
		appLog.Warn("falling back to UTC", "err", err)
	}

	appLog.Info("studyplan starting",
		"listen", conf.Listen,
		"db_path", conf.DBPath,
		"timezone", loc.String(),
		"hours_per_ects", conf.HoursPerECTS,
		"calendars", len(conf.Calendars),
		"dedup_once", flags.dedupOnce,
	)

	db, err := store.OpenSQLite(conf.DBPath)
	if err != nil {
		appLog.Error("failed to open database", err, "db_path", conf.DBPath)
		os.Exit(1)
	}
	defer db.Close()

	svc := planner.NewService(db, planner.Options{
		HoursPerECTS:         conf.HoursPerECTS,
		MaxOccurrences:       conf.MaxOccurrences,
		HorizonDays:          conf.HorizonDays,
		MaxSeriesOccurrences: conf.MaxSeriesOccurrences,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if flags.dedupOnce {
		rep, err := svc.Deduplicate(ctx, flags.owner)
		if err != nil {
			appLog.Error("dedup failed", err, "owner", flags.owner)
			os.Exit(1)
		}
		appLog.Info("dedup done", "survivors", rep.SurvivorCount, "removed", rep.RemovedCount)
		return
	}

	syncer := &calsync.Syncer{
		Fetcher: calsync.NewFetcher(conf.CacheDir, nil),
		Importer: &calsync.Importer{
			Location:       loc,
			MaxOccurrences: conf.MaxOccurrences,
			HorizonDays:    conf.HorizonDays,
		},
		Sink: svc,
	}

	sched, err := newScheduler(conf, svc, syncer)
	if err != nil {
		appLog.Error("failed to set up scheduled jobs", err)
		os.Exit(1)
	}
	sched.Start()

	srv := web.NewServer(svc, conf.BasicAuth, loc)
	if err := web.Start(ctx, conf.Listen, srv.Handler()); err != nil {
		appLog.Error("http server failed", err, "listen", conf.Listen)
	}

	stopCtx := sched.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		appLog.Warn("scheduled jobs still running at exit")
	}
	appLog.Info("studyplan exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/studyplan/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.dedupOnce, "dedup-once", false, "Run one deduplication pass and exit")
	flag.StringVar(&cfg.owner, "owner", "", "Restrict -dedup-once to one owner")

	flag.Parse()

	return cfg
}
