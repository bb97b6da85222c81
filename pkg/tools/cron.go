package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tinyclaw/tinyclaw/pkg/bus"
	"github.com/tinyclaw/tinyclaw/pkg/cron"
)

// cronExecutor is the subset of the agent loop a scheduled job needs to
// run its message through the normal conversation path instead of being
// delivered directly.
type cronExecutor interface {
	ProcessDirectWithChannel(ctx context.Context, content, sessionKey, channel, chatID string) (string, error)
}

// CronTool lets the agent manage its own scheduled reminders and
// recurring jobs, and is also the job-execution entry point the
// CronService calls back into when a job fires.
type CronTool struct {
	service  *cron.CronService
	executor cronExecutor
	bus      *bus.MessageBus
}

func NewCronTool(service *cron.CronService, executor cronExecutor, msgBus *bus.MessageBus) *CronTool {
	return &CronTool{service: service, executor: executor, bus: msgBus}
}

// Service exposes the underlying CronService so callers can start/stop the
// scheduler alongside registering the tool.
func (t *CronTool) Service() *cron.CronService {
	return t.service
}

func (t *CronTool) Name() string {
	return "cron"
}

func (t *CronTool) Description() string {
	return "Schedule, list, enable/disable, or remove reminders and recurring jobs."
}

func (t *CronTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"add", "list", "remove", "enable", "disable"},
				"description": "Operation to perform",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Message to deliver when the job fires (required for action=add)",
			},
			"at_seconds": map[string]interface{}{
				"type":        "number",
				"description": "Fire once, this many seconds from now. Takes priority over every_seconds.",
			},
			"every_seconds": map[string]interface{}{
				"type":        "number",
				"description": "Fire repeatedly every this many seconds",
			},
			"cron_expr": map[string]interface{}{
				"type":        "string",
				"description": "Fire on a cron expression schedule (used only if neither at_seconds nor every_seconds is set)",
			},
			"deliver": map[string]interface{}{
				"type":        "boolean",
				"description": "If true, deliver the message directly to channel/chat_id without going through the agent",
			},
			"channel": map[string]interface{}{
				"type":        "string",
				"description": "Channel to deliver to",
			},
			"chat_id": map[string]interface{}{
				"type":        "string",
				"description": "Chat ID to deliver to",
			},
			"job_id": map[string]interface{}{
				"type":        "string",
				"description": "Job ID (required for remove/enable/disable)",
			},
		},
	}
}

func (t *CronTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	action, _ := args["action"].(string)

	switch action {
	case "add":
		return t.add(args)
	case "list":
		return t.list(), nil
	case "remove":
		return t.remove(args), nil
	case "enable":
		return t.setEnabled(args, true), nil
	case "disable":
		return t.setEnabled(args, false), nil
	default:
		return "", fmt.Errorf("unknown action: %s", action)
	}
}

func (t *CronTool) add(args map[string]interface{}) (string, error) {
	message, _ := args["message"].(string)
	if strings.TrimSpace(message) == "" {
		return "message is required for action=add", nil
	}

	channel, chatID := getExecutionContext(args)
	if ch, ok := args["channel"].(string); ok && ch != "" {
		channel = ch
	}
	if cid, ok := args["chat_id"].(string); ok && cid != "" {
		chatID = cid
	}
	if channel == "" || chatID == "" {
		return "no session context available to schedule this job against", nil
	}

	deliver, _ := args["deliver"].(bool)
	schedule := buildSchedule(args)

	job, err := t.service.AddJob("", schedule, message, deliver, channel, chatID)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	return fmt.Sprintf("Created job %s", job.ID), nil
}

func buildSchedule(args map[string]interface{}) cron.CronSchedule {
	if atSeconds, ok := args["at_seconds"].(float64); ok && atSeconds > 0 {
		at := time.Now().UnixMilli() + int64(atSeconds*1000)
		return cron.CronSchedule{Kind: "at", AtMS: &at}
	}
	if everySeconds, ok := args["every_seconds"].(float64); ok && everySeconds > 0 {
		every := int64(everySeconds * 1000)
		return cron.CronSchedule{Kind: "every", EveryMS: &every}
	}
	if expr, ok := args["cron_expr"].(string); ok && expr != "" {
		return cron.CronSchedule{Kind: "cron", Expr: expr}
	}
	return cron.CronSchedule{}
}

func (t *CronTool) list() string {
	jobs := t.service.ListJobs(true)
	if len(jobs) == 0 {
		return "No scheduled jobs."
	}

	lines := make([]string, 0, len(jobs)+1)
	lines = append(lines, "Scheduled jobs:")
	for _, job := range jobs {
		status := "enabled"
		if !job.Enabled {
			status = "disabled"
		}
		lines = append(lines, fmt.Sprintf("- %s [%s] %s -> %s:%s (%s)", job.ID, status, job.Payload.Message, job.Payload.Channel, job.Payload.To, job.Schedule.Kind))
	}
	return strings.Join(lines, "\n")
}

func (t *CronTool) remove(args map[string]interface{}) string {
	jobID, _ := args["job_id"].(string)
	if jobID == "" {
		return "job_id is required"
	}
	if t.service.RemoveJob(jobID) {
		return fmt.Sprintf("Removed job %s", jobID)
	}
	return fmt.Sprintf("Job %s not found", jobID)
}

func (t *CronTool) setEnabled(args map[string]interface{}, enabled bool) string {
	jobID, _ := args["job_id"].(string)
	if jobID == "" {
		return "job_id is required"
	}
	job := t.service.EnableJob(jobID, enabled)
	if job == nil {
		return fmt.Sprintf("Job %s not found", jobID)
	}
	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	return fmt.Sprintf("Job %s %s", jobID, state)
}

// ExecuteJob is the CronService callback: delivers directly to the bus
// when the job's payload says to, otherwise routes the message through
// the agent as if it were a new turn in a dedicated "cron-<id>" session.
func (t *CronTool) ExecuteJob(ctx context.Context, job *cron.CronJob) string {
	if job.Payload.Deliver {
		if t.bus != nil {
			t.bus.PublishOutbound(bus.OutboundMessage{
				Channel: job.Payload.Channel,
				ChatID:  job.Payload.To,
				Content: job.Payload.Message,
			})
		}
		return "ok"
	}

	if t.executor == nil {
		return "ok"
	}

	sessionKey := fmt.Sprintf("cron-%s", job.ID)
	result, err := t.executor.ProcessDirectWithChannel(ctx, job.Payload.Message, sessionKey, job.Payload.Channel, job.Payload.To)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return result
}
