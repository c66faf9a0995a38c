package main

import (
	"context"
	"runtime"
	"time"

	"github.com/Borislavv/traffic-governor/pkg/api"
	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/Borislavv/traffic-governor/pkg/config"
	"github.com/Borislavv/traffic-governor/pkg/datasource"
	"github.com/Borislavv/traffic-governor/pkg/governor"
	"github.com/Borislavv/traffic-governor/pkg/metriclog"
	"github.com/Borislavv/traffic-governor/pkg/metrics"
	"github.com/Borislavv/traffic-governor/pkg/shutdown"
	"github.com/Borislavv/traffic-governor/pkg/system"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go.uber.org/automaxprocs/maxprocs"
)

const (
	configPath      = "governor.cfg.yaml"
	configPathLocal = "governor.cfg.local.yaml"
	rulesPath       = "governor.rules.yaml"
)

// setMaxProcs aligns GOMAXPROCS with cgroup/docker CPU quotas.
func setMaxProcs() {
	if _, err := maxprocs.Set(); err != nil {
		log.Err(err).Msg("[main] setting up GOMAXPROCS value failed")
		panic(err)
	}
	log.Info().Msgf("[main] optimized GOMAXPROCS=%d was set up", runtime.GOMAXPROCS(0))
}

// loadCfg prefers the local override file and falls back to the default
// path, then to built-in defaults.
func loadCfg() *config.Governor {
	cfg, err := config.LoadConfig(configPathLocal)
	if err == nil {
		log.Info().Msgf("[config] config loaded from '%v'", configPathLocal)
		return cfg
	}
	cfg, err = config.LoadConfig(configPath)
	if err == nil {
		log.Info().Msgf("[config] config loaded from '%v'", configPath)
		return cfg
	}
	log.Info().Msg("[config] no config file found, using defaults")
	return config.Default()
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = godotenv.Load()
	setMaxProcs()

	cfg := loadCfg()

	// Cached wall clock keeps hot-path time reads to one atomic load.
	stopClock := clock.Start(time.Millisecond)
	defer stopClock()

	sampler := system.NewSampler(time.Second)
	gov := governor.New(
		governor.WithConfig(cfg),
		governor.WithSampler(sampler),
		governor.WithStatSlot(metrics.NewMeter()),
	)
	defer gov.Stop()

	gracefulShutdown := shutdown.NewGraceful(ctx, cancel)
	gracefulShutdown.SetGracefulTimeout(time.Minute)

	source := datasource.NewFileSource(gov, rulesPath, 3*time.Second, nil)
	gracefulShutdown.Add(1)
	go func() {
		defer gracefulShutdown.Done()
		source.Run(ctx)
	}()

	if cfg.Governor.MetricLog.Enabled {
		writer := metriclog.NewWriter(gov.Tree(), gov.Clock(), cfg.Governor.MetricLog)
		gracefulShutdown.Add(1)
		go func() {
			defer gracefulShutdown.Done()
			writer.Run(ctx)
		}()
	}

	if cfg.Governor.Api.Enabled {
		srv := api.NewServer(gov, cfg.Governor.Api.Port)
		gracefulShutdown.Add(1)
		go func() {
			defer gracefulShutdown.Done()
			srv.Start(ctx)
		}()
	}

	if err := gracefulShutdown.ListenCancelAndAwait(); err != nil {
		log.Err(err).Msg("[main] graceful shutdown failed")
		return
	}
	log.Info().Msg("[main] stopped")
}
