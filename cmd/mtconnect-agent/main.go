// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	mtcagent "github.com/mtconnect-go/agent/internal/agent"
	"github.com/mtconnect-go/agent/pkg/log"
	"github.com/mtconnect-go/agent/pkg/schema"
)

func main() {
	cliInit()
	log.SetLogLevel(flagLogLevel)
	log.SetLogDateTime(flagLogDateTime)

	// See https://github.com/google/gops (Runtime overhead is almost zero)
	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	data, err := os.ReadFile(flagConfigFile)
	if err != nil {
		log.Fatalf("reading config file %q: %s", flagConfigFile, err.Error())
	}
	pc, err := schema.LoadProgramConfig(data)
	if err != nil {
		log.Fatalf("loading config file %q: %s", flagConfigFile, err.Error())
	}

	cfg, err := mtcagent.FromProgramConfig(pc)
	if err != nil {
		log.Fatalf("building agent config: %s", err.Error())
	}

	devFile, err := os.Open(pc.DeviceModelFile)
	if err != nil {
		log.Fatalf("opening device model file %q: %s", pc.DeviceModelFile, err.Error())
	}
	deviceCfg, err := schema.LoadDeviceConfig(devFile)
	devFile.Close()
	if err != nil {
		log.Fatalf("loading device model file %q: %s", pc.DeviceModelFile, err.Error())
	}

	a, err := mtcagent.New(cfg, []*schema.DeviceConfig{deviceCfg})
	if err != nil {
		log.Fatalf("initializing agent: %s", err.Error())
	}

	if pc.EventBridgeURL != "" {
		bridge, err := mtcagent.NewEventBridge(pc.EventBridgeURL, "mtconnect.observations")
		if err != nil {
			log.Warnf("event bridge disabled: %s", err.Error())
		} else {
			a.SetEventBridge(bridge)
			defer bridge.Close()
		}
	}

	metrics := mtcagent.NewMetrics(a)
	a.SetMetrics(metrics)

	var metricsServer *http.Server
	if pc.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: pc.MetricsAddr, Handler: mux}
		go func() {
			log.Infof("metrics listening at %s", pc.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("metrics server: %s", err.Error())
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	if err := a.StartAdapters(ctx, pc.Adapters); err != nil {
		log.Fatalf("starting adapters: %s", err.Error())
	}

	tasks, err := a.StartBackgroundTasks()
	if err != nil {
		log.Fatalf("starting background tasks: %s", err.Error())
	}

	log.Info("mtconnect agent running")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	log.Info("shutting down")
	cancel()
	a.StopAdapters()
	if err := tasks.Shutdown(); err != nil {
		log.Warnf("background task shutdown: %s", err.Error())
	}
	if metricsServer != nil {
		metricsServer.Shutdown(context.Background())
	}
	log.Info("shutdown complete")
}
