// TinyClaw - Ultra-lightweight personal AI agent
// Inspired by and based on nanobot: https://github.com/HKUDS/nanobot
// License: MIT
//
// Copyright (c) 2026 TinyClaw contributors

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tinyclaw/tinyclaw/pkg/agent"
	"github.com/tinyclaw/tinyclaw/pkg/bus"
	"github.com/tinyclaw/tinyclaw/pkg/channels"
	"github.com/tinyclaw/tinyclaw/pkg/config"
	"github.com/tinyclaw/tinyclaw/pkg/cron"
	"github.com/tinyclaw/tinyclaw/pkg/heartbeat"
	"github.com/tinyclaw/tinyclaw/pkg/logger"
	"github.com/tinyclaw/tinyclaw/pkg/providers"
	"github.com/tinyclaw/tinyclaw/pkg/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tinyclaw: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(logger.ParseLevel(os.Getenv("TINYCLAW_LOG_LEVEL")))
	defer logger.Shutdown()

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	msgBus := bus.NewMessageBusWithCapacity(cfg.Bus.InboundCapacity, cfg.Bus.OutboundCapacity)

	loop := agent.NewAgentLoop(cfg, msgBus, provider)

	cronTool := wireCron(workspace, msgBus, loop, time.Duration(cfg.Scheduler.TickIntervalMs)*time.Millisecond)
	loop.RegisterTool(cronTool)

	hbService := heartbeat.NewHeartbeatService(workspace, func(prompt string) (string, error) {
		msgBus.PublishInbound(bus.InboundMessage{
			Channel:    "system",
			SenderID:   "heartbeat",
			ChatID:     "cli:default",
			SessionKey: "cli:default",
			Content:    prompt,
		})
		return "queued", nil
	}, cfg.Heartbeat.IntervalMinutes, cfg.Heartbeat.Enabled)

	chManager := channels.NewManager(msgBus)
	cliChannel, err := channels.NewCLIChannel(msgBus, filepath.Join(workspace, ".cli_history"))
	if err != nil {
		return fmt.Errorf("create CLI channel: %w", err)
	}
	chManager.RegisterChannel("cli", cliChannel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := chManager.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	if err := cronTool.Service().Start(); err != nil {
		logger.WarnCF("main", "cron service failed to start", map[string]interface{}{"error": err.Error()})
	}
	if err := hbService.Start(); err != nil {
		logger.WarnCF("main", "heartbeat service failed to start", map[string]interface{}{"error": err.Error()})
	}

	go func() {
		if err := loop.Run(ctx); err != nil {
			logger.ErrorCF("main", "agent loop exited with error", map[string]interface{}{"error": err.Error()})
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.InfoC("main", "shutting down")
	loop.Stop()
	hbService.Stop()
	cronTool.Service().Stop()
	_ = chManager.StopAll(ctx)
	cancel()

	return nil
}

// wireCron builds the cron service and its tool, feeding job execution
// back through the agent loop's direct-process path.
func wireCron(workspace string, msgBus *bus.MessageBus, loop *agent.AgentLoop, tickInterval time.Duration) *tools.CronTool {
	storePath := filepath.Join(workspace, "cron", "jobs.json")

	var cronTool *tools.CronTool
	service := cron.NewCronService(storePath, func(job *cron.CronJob) (string, error) {
		return cronTool.ExecuteJob(context.Background(), job), nil
	})
	service.SetTickInterval(tickInterval)
	cronTool = tools.NewCronTool(service, loop, msgBus)
	return cronTool
}
