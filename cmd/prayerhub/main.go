// prayerhub is the prayer-time audio appliance daemon: it prefetches prayer
// times, schedules audio events and serves the web control panel.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prayerhub/internal/app"
	"prayerhub/internal/audio"
	"prayerhub/internal/bluetooth"
	"prayerhub/internal/cache"
	"prayerhub/internal/clock"
	"prayerhub/internal/command"
	"prayerhub/internal/config"
	"prayerhub/internal/keepalive"
	"prayerhub/internal/logging"
	"prayerhub/internal/playback"
	"prayerhub/internal/prayer"
	"prayerhub/internal/schedule"
	"prayerhub/internal/web"
)

// refreshHour/refreshMinute place the daily refresh shortly after midnight,
// once the API has rolled to the new date.
const (
	refreshHour   = 0
	refreshMinute = 5
)

func main() {
	var (
		configPath string
		cacheDir   string
		debug      bool
		dryRun     bool
	)

	root := &cobra.Command{
		Use:          "prayerhub",
		Short:        "Prayer-time audio appliance",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, cacheDir, debug, dryRun)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "config.yml", "path to the base config file")
	root.Flags().StringVar(&cacheDir, "cache-dir", "cache", "directory for cached prayer times")
	root.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.Flags().BoolVar(&dryRun, "dry-run", false, "validate config, print the schedule and exit")

	if err := root.Execute(); err != nil {
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			fmt.Fprintln(os.Stderr, "configuration error:", cfgErr.Error())
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(configPath, cacheDir string, debug, dryRun bool) error {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{FilePath: cfg.Logging.FilePath, Debug: debug})
	if err != nil {
		return fmt.Errorf("logging setup failed: %w", err)
	}
	defer logger.Sync()

	clk := clock.NewRealClock()
	runner := command.NewExecRunner()

	store, err := cache.NewStore(cacheDir, logger)
	if err != nil {
		return fmt.Errorf("cache setup failed: %w", err)
	}

	var coords *prayer.Coords
	if cfg.Location.Latitude != 0 || cfg.Location.Longitude != 0 {
		coords = &prayer.Coords{
			Latitude:  cfg.Location.Latitude,
			Longitude: cfg.Location.Longitude,
		}
	}

	client := prayer.NewClient(prayer.ClientOptions{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    time.Duration(cfg.API.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.API.MaxRetries,
		RetryBase:  time.Duration(cfg.API.RetryBaseMs) * time.Millisecond,
	}, logger)
	plans := prayer.NewService(client, store, cfg.Location.City, cfg.Location.Madhab, coords, clk, logger)

	router := audio.NewRouter(runner, logger)
	prober := audio.NewFfprobeProber(runner,
		time.Duration(cfg.Audio.FfprobeTimeoutSeconds)*time.Second, logger)
	timeouts := audio.NewTimeoutPolicy(
		cfg.Audio.PlaybackTimeoutStrategy,
		time.Duration(cfg.Audio.PlaybackTimeoutSeconds)*time.Second,
		time.Duration(cfg.Audio.PlaybackTimeoutBufferSeconds)*time.Second,
		prober, logger)

	tone := keepalive.NewService(cfg.Audio.Keepalive, audio.DetectPlayer(runner).String(), runner, clk, logger)
	player := audio.NewExclusivePlayer(runner, router, cfg.Audio.PlayerArgs(), tone, logger)

	handler := playback.NewHandler(cfg.Audio, nil, player, timeouts, logger)
	speaker, err := bluetooth.NewManager(runner, clk, cfg.Bluetooth.DeviceMAC,
		cfg.Bluetooth.EnsureDefaultSink, router, handler.PlayConnectedTone, logger)
	if err != nil {
		return err
	}
	handler = playback.NewHandler(cfg.Audio, speaker, player, timeouts, logger)
	tone.SetConnectionGate(speaker.EnsureConnectedOnce)

	jobRunner := schedule.NewRunner(clk, logger)
	dayScheduler := schedule.NewDayScheduler(jobRunner,
		func(_ prayer.DayPlan, event string) { handler.HandleEvent(event) },
		clk, logger)
	tests := schedule.NewTestScheduler(jobRunner,
		func() { handler.HandleEvent(playback.EventTest) },
		cfg.ControlPanel.TestScheduler.MaxPendingTests,
		cfg.ControlPanel.TestScheduler.MaxMinutesAhead,
		clk, logger)

	orchestrator := app.NewOrchestrator(plans, dayScheduler, cfg, clk, logger)

	if dryRun {
		return printDryRun(orchestrator, dayScheduler, logger)
	}

	timeouts.Prewarm(playback.AudioPaths(cfg.Audio))

	speaker.EnsureConnected()
	tone.ResumeIfIdle()
	defer tone.Stop()

	orchestrator.ScheduleFromCache()
	if err := orchestrator.ScheduleRefresh(refreshHour, refreshMinute); err != nil {
		return err
	}

	if cfg.ControlPanel.Enabled {
		panel := web.NewServer(cfg.ControlPanel, web.Deps{
			Scheduler: dayScheduler,
			Tests:     tests,
			Bluetooth: speaker,
			Keepalive: tone,
			Volume:    router,
			PlayNow:   func() { handler.HandleEvent(playback.EventTest) },
			LogPath:   cfg.Logging.FilePath,
		}, cfg.Audio.Volumes.MasterPercent, logger)
		go func() {
			if err := panel.Run(); err != nil {
				logger.Error("Control panel stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("prayerhub running",
		zap.String("city", cfg.Location.City),
		zap.String("madhab", cfg.Location.Madhab))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	logger.Info("Shutting down", zap.String("signal", sig.String()))
	return nil
}

// printDryRun validates wiring and prints the jobs the cached plans would
// produce, without touching audio or the network.
func printDryRun(orchestrator *app.Orchestrator, scheduler *schedule.DayScheduler, logger *zap.Logger) error {
	days := orchestrator.ScheduleFromCache()
	jobs := scheduler.Jobs()

	fmt.Printf("configuration OK; %d cached day(s), %d pending job(s)\n", days, len(jobs))
	for _, job := range jobs {
		fmt.Printf("  %-40s %s\n", job.ID, job.RunAt.Format("2006-01-02 15:04"))
	}
	logger.Info("Dry run complete", zap.Int("jobs", len(jobs)))
	return nil
}
