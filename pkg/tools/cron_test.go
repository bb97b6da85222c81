package tools

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinyclaw/tinyclaw/pkg/bus"
	"github.com/tinyclaw/tinyclaw/pkg/cron"
)

// stubAgent stands in for the agent loop's ProcessDirectWithChannel so a
// fired job can be asserted against without driving a real LLM call.
type stubAgent struct {
	lastContent string
	lastSession string
	lastChannel string
	lastChatID  string
	response    string
	err         error
	callCount   int
}

func (s *stubAgent) ProcessDirectWithChannel(ctx context.Context, content, sessionKey, channel, chatID string) (string, error) {
	s.callCount++
	s.lastContent = content
	s.lastSession = sessionKey
	s.lastChannel = channel
	s.lastChatID = chatID
	return s.response, s.err
}

func newCronToolWithService(t *testing.T) (*CronTool, *cron.CronService, *stubAgent, *bus.MessageBus) {
	t.Helper()

	service := cron.NewCronService(filepath.Join(t.TempDir(), "cron.json"), nil)
	agent := &stubAgent{response: "reminder delivered"}
	msgBus := bus.NewMessageBus()
	tool := NewCronTool(service, agent, msgBus)

	return tool, service, agent, msgBus
}

func TestCronTool_Add(t *testing.T) {
	t.Run("requires an explicit session context when none is in the args", func(t *testing.T) {
		tool, _, _, _ := newCronToolWithService(t)

		result, err := tool.Execute(context.Background(), map[string]interface{}{
			"action":     "add",
			"message":    "remind owner-884 to take meds",
			"at_seconds": float64(60),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result, "no session context") {
			t.Fatalf("expected session context error, got %q", result)
		}
	})

	t.Run("picks up channel and chat ID injected by the registry", func(t *testing.T) {
		tool, service, _, _ := newCronToolWithService(t)
		registry := NewToolRegistry()
		registry.Register(tool)

		result, err := registry.ExecuteWithContext(context.Background(), "cron", map[string]interface{}{
			"action":     "add",
			"message":    "remind owner-884 to take meds",
			"at_seconds": float64(60),
		}, "telegram", "owner-884")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result, "Created job") {
			t.Fatalf("expected created message, got %q", result)
		}

		jobs := service.ListJobs(true)
		if len(jobs) != 1 {
			t.Fatalf("expected 1 job, got %d", len(jobs))
		}
		if jobs[0].Payload.Channel != "telegram" || jobs[0].Payload.To != "owner-884" {
			t.Fatalf("job payload channel/chat = %s/%s, want telegram/owner-884", jobs[0].Payload.Channel, jobs[0].Payload.To)
		}
	})

	t.Run("explicit channel and chat_id args win over injected context", func(t *testing.T) {
		tool, service, _, _ := newCronToolWithService(t)
		registry := NewToolRegistry()
		registry.Register(tool)

		result, err := registry.ExecuteWithContext(context.Background(), "cron", map[string]interface{}{
			"action":        "add",
			"message":       "water the plants",
			"at_seconds":    float64(120),
			"deliver":       true,
			"channel":       "telegram",
			"chat_id":       "owner-884",
			"cron_expr":     "ignored because at_seconds wins",
			"every_seconds": float64(10),
		}, "slack", "team-channel")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result, "Created job") {
			t.Fatalf("expected created message, got %q", result)
		}

		jobs := service.ListJobs(true)
		if len(jobs) != 1 {
			t.Fatalf("expected 1 job, got %d", len(jobs))
		}
		if jobs[0].Payload.Channel != "telegram" || jobs[0].Payload.To != "owner-884" {
			t.Fatalf("job payload channel/chat = %s/%s, want telegram/owner-884", jobs[0].Payload.Channel, jobs[0].Payload.To)
		}
	})

	t.Run("at_seconds takes priority over every_seconds", func(t *testing.T) {
		tool, service, _, _ := newCronToolWithService(t)

		_, err := tool.Execute(context.Background(), map[string]interface{}{
			"action":        "add",
			"message":       "check the backup job",
			"at_seconds":    float64(30),
			"channel":       "telegram",
			"chat_id":       "owner-884",
			"every_seconds": float64(5),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		jobs := service.ListJobs(true)
		if len(jobs) != 1 {
			t.Fatalf("expected 1 job, got %d", len(jobs))
		}
		if jobs[0].Schedule.Kind != "at" {
			t.Fatalf("expected at schedule, got %q", jobs[0].Schedule.Kind)
		}
		if jobs[0].Schedule.EveryMS != nil {
			t.Fatal("expected every schedule to be empty when at_seconds is used")
		}
	})

	t.Run("rejects a missing message before touching the scheduler", func(t *testing.T) {
		tool, service, _, _ := newCronToolWithService(t)

		got, err := tool.Execute(context.Background(), map[string]interface{}{
			"action":     "add",
			"at_seconds": float64(30),
			"channel":    "telegram",
			"chat_id":    "owner-884",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(got, "message is required") {
			t.Fatalf("expected required message error, got %q", got)
		}
		if len(service.ListJobs(true)) != 0 {
			t.Fatal("expected no job to be scheduled when the message is missing")
		}
	})
}

func TestCronTool_List(t *testing.T) {
	t.Run("reports an empty schedule plainly", func(t *testing.T) {
		tool, _, _, _ := newCronToolWithService(t)

		got, err := tool.Execute(context.Background(), map[string]interface{}{
			"action": "list",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "No scheduled jobs." {
			t.Fatalf("expected no jobs message, got %q", got)
		}
	})

	t.Run("lists a job created through add", func(t *testing.T) {
		tool, _, _, _ := newCronToolWithService(t)

		if _, err := tool.Execute(context.Background(), map[string]interface{}{
			"action":        "add",
			"message":       "nightly housekeeping pass",
			"every_seconds": float64(86400),
			"channel":       "telegram",
			"chat_id":       "owner-884",
		}); err != nil {
			t.Fatalf("unexpected error adding job: %v", err)
		}

		list, err := tool.Execute(context.Background(), map[string]interface{}{
			"action": "list",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(list, "Scheduled jobs:") {
			t.Fatalf("expected list header, got %q", list)
		}
		if !strings.Contains(list, "nightly housekeeping pass") {
			t.Fatalf("expected job message in listing, got %q", list)
		}
	})
}

func TestCronTool_RemoveEnableDisable(t *testing.T) {
	t.Run("full lifecycle: disable, enable, then remove", func(t *testing.T) {
		tool, service, _, _ := newCronToolWithService(t)

		if _, err := tool.Execute(context.Background(), map[string]interface{}{
			"action":        "add",
			"message":       "weekly standup recap",
			"every_seconds": float64(604800),
			"channel":       "slack",
			"chat_id":       "team-channel",
		}); err != nil {
			t.Fatalf("unexpected error adding job: %v", err)
		}

		jobID := service.ListJobs(true)[0].ID

		result, err := tool.Execute(context.Background(), map[string]interface{}{
			"action": "disable",
			"job_id": jobID,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result, "disabled") {
			t.Fatalf("expected disabled message, got %q", result)
		}

		result, err = tool.Execute(context.Background(), map[string]interface{}{
			"action": "enable",
			"job_id": jobID,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result, "enabled") {
			t.Fatalf("expected enabled message, got %q", result)
		}

		result, err = tool.Execute(context.Background(), map[string]interface{}{
			"action": "remove",
			"job_id": jobID,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result, "Removed job") {
			t.Fatalf("expected removed message, got %q", result)
		}

		if len(service.ListJobs(true)) != 0 {
			t.Fatalf("expected all jobs removed, got %d", len(service.ListJobs(true)))
		}
	})

	t.Run("remove, enable, and disable all report a clear not-found for an unknown job_id", func(t *testing.T) {
		tool, _, _, _ := newCronToolWithService(t)

		if got, err := tool.Execute(context.Background(), map[string]interface{}{"action": "remove", "job_id": "ghost"}); err != nil || !strings.Contains(got, "not found") {
			t.Fatalf("remove: got %q, err %v", got, err)
		}
		if got, err := tool.Execute(context.Background(), map[string]interface{}{"action": "enable", "job_id": "ghost"}); err != nil || !strings.Contains(got, "not found") {
			t.Fatalf("enable: got %q, err %v", got, err)
		}
		if got, err := tool.Execute(context.Background(), map[string]interface{}{"action": "disable", "job_id": "ghost"}); err != nil || !strings.Contains(got, "not found") {
			t.Fatalf("disable: got %q, err %v", got, err)
		}
	})

	t.Run("missing job_id is rejected without touching the scheduler", func(t *testing.T) {
		tool, _, _, _ := newCronToolWithService(t)

		got, err := tool.Execute(context.Background(), map[string]interface{}{"action": "remove"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(got, "job_id is required") {
			t.Fatalf("expected job_id required error, got %q", got)
		}
	})
}

func TestCronTool_Execute(t *testing.T) {
	t.Run("rejects an unrecognized action", func(t *testing.T) {
		tool, _, _, _ := newCronToolWithService(t)

		if _, err := tool.Execute(context.Background(), map[string]interface{}{
			"action": "snooze",
		}); err == nil {
			t.Fatal("expected error for an unknown action")
		}
	})
}

func TestCronTool_ExecuteJob(t *testing.T) {
	t.Run("deliver=true publishes straight to the outbound bus, bypassing the agent", func(t *testing.T) {
		tool, _, agent, msgBus := newCronToolWithService(t)

		job := &cron.CronJob{
			ID: "direct-1",
			Payload: cron.CronPayload{
				Message: "time to stretch",
				Deliver: true,
				Channel: "telegram",
				To:      "owner-884",
			},
		}

		if got := tool.ExecuteJob(context.Background(), job); got != "ok" {
			t.Fatalf("expected ok, got %q", got)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		out, ok := msgBus.SubscribeOutbound(ctx)
		if !ok {
			t.Fatal("expected outbound message from direct delivery")
		}
		if out.Channel != "telegram" || out.ChatID != "owner-884" || out.Content != "time to stretch" {
			t.Fatalf("unexpected outbound message %#v", out)
		}
		if agent.callCount != 0 {
			t.Fatalf("expected the agent not to be called for a direct delivery, called %d times", agent.callCount)
		}
	})

	t.Run("deliver=false routes the message through the agent in a dedicated cron session", func(t *testing.T) {
		tool, _, agent, _ := newCronToolWithService(t)

		job := &cron.CronJob{
			ID: "agent-1",
			Payload: cron.CronPayload{
				Message: "summarize unread messages from today",
				Deliver: false,
				Channel: "cli",
				To:      "owner-884",
			},
		}

		if got := tool.ExecuteJob(context.Background(), job); got != "reminder delivered" {
			t.Fatalf("expected agent response, got %q", got)
		}

		if agent.callCount != 1 {
			t.Fatalf("expected the agent to be called once, got %d", agent.callCount)
		}
		if agent.lastContent != "summarize unread messages from today" {
			t.Fatalf("unexpected content passed to agent: %q", agent.lastContent)
		}
		if agent.lastSession != "cron-agent-1" {
			t.Fatalf("unexpected session key: %q", agent.lastSession)
		}
		if agent.lastChannel != "cli" {
			t.Fatalf("unexpected channel: %q", agent.lastChannel)
		}
		if agent.lastChatID != "owner-884" {
			t.Fatalf("unexpected chat id: %q", agent.lastChatID)
		}
	})

	t.Run("surfaces an agent error as an Error: result rather than propagating it", func(t *testing.T) {
		tool, _, agent, _ := newCronToolWithService(t)
		agent.err = errors.New("agent unreachable")

		job := &cron.CronJob{
			ID: "agent-error",
			Payload: cron.CronPayload{
				Message: "generate the weekly digest",
				Deliver: false,
			},
		}

		got := tool.ExecuteJob(context.Background(), job)
		if !strings.Contains(got, "Error:") {
			t.Fatalf("expected error result, got %q", got)
		}
	})

	t.Run("a nil executor is tolerated for a non-delivered job", func(t *testing.T) {
		service := cron.NewCronService(filepath.Join(t.TempDir(), "cron.json"), nil)
		tool := NewCronTool(service, nil, bus.NewMessageBus())

		job := &cron.CronJob{
			ID: "nil-executor",
			Payload: cron.CronPayload{
				Message: "run through agent",
				Deliver: false,
				Channel: "cli",
				To:      "owner-884",
			},
		}

		didPanic := false
		func() {
			defer func() {
				if recover() != nil {
					didPanic = true
				}
			}()
			_ = tool.ExecuteJob(context.Background(), job)
		}()

		if didPanic {
			t.Fatal("ExecuteJob should not panic when executor is nil")
		}
	})

	t.Run("a nil bus is tolerated for a delivered job", func(t *testing.T) {
		service := cron.NewCronService(filepath.Join(t.TempDir(), "cron.json"), nil)
		tool := NewCronTool(service, nil, nil)

		job := &cron.CronJob{
			ID: "nil-bus",
			Payload: cron.CronPayload{
				Message: "ping",
				Deliver: true,
				Channel: "telegram",
				To:      "owner-884",
			},
		}

		if got := tool.ExecuteJob(context.Background(), job); got != "ok" {
			t.Fatalf("expected ok even with a nil bus, got %q", got)
		}
	})
}
