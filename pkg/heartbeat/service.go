package heartbeat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tinyclaw/tinyclaw/pkg/logger"
)

const firstBeatDelay = 1 * time.Second

// ExecuteFunc runs one heartbeat turn given the built prompt and returns
// the agent's response.
type ExecuteFunc func(prompt string) (string, error)

// HeartbeatService periodically prompts the agent with the contents of
// HEARTBEAT.md so it can surface reminders or check on background work
// without a user message triggering it.
type HeartbeatService struct {
	workspace string
	execute   ExecuteFunc
	interval  time.Duration
	enabled   bool
	mu        sync.Mutex
	stopChan  chan struct{}
}

func NewHeartbeatService(workspace string, execute ExecuteFunc, intervalMinutes int, enabled bool) *HeartbeatService {
	return &HeartbeatService{
		workspace: workspace,
		execute:   execute,
		interval:  time.Duration(intervalMinutes) * time.Minute,
		enabled:   enabled,
	}
}

// Start begins the heartbeat loop. Idempotent while already running.
// Returns an error if the configured interval is non-positive.
func (hs *HeartbeatService) Start() error {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if hs.interval <= 0 {
		return fmt.Errorf("heartbeat: interval must be positive")
	}
	if hs.stopChan != nil {
		return nil
	}
	if !hs.enabled {
		logger.InfoC("heartbeat", "service disabled, not starting")
		return nil
	}

	hs.stopChan = make(chan struct{})
	stopChan := hs.stopChan
	go hs.runLoop(stopChan)

	logger.InfoCF("heartbeat", "service started", map[string]interface{}{"interval_minutes": hs.interval.Minutes()})
	return nil
}

func (hs *HeartbeatService) Stop() {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.stopChan == nil {
		return
	}
	close(hs.stopChan)
	hs.stopChan = nil
}

func (hs *HeartbeatService) runLoop(stopChan chan struct{}) {
	ticker := time.NewTicker(hs.interval)
	defer ticker.Stop()

	firstBeat := time.NewTimer(firstBeatDelay)
	defer firstBeat.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-firstBeat.C:
			hs.beat()
		case <-ticker.C:
			hs.beat()
		}
	}
}

func (hs *HeartbeatService) beat() {
	prompt := hs.buildPrompt()
	if prompt == "" {
		logger.DebugC("heartbeat", "no prompt, skipping beat")
		return
	}
	if hs.execute == nil {
		return
	}
	if _, err := hs.execute(prompt); err != nil {
		logger.WarnCF("heartbeat", "execution failed", map[string]interface{}{"error": err.Error()})
	}
}

// buildPrompt reads memory/HEARTBEAT.md from the workspace, creating a
// default template on first run. Returns "" when there is nothing worth
// prompting about.
func (hs *HeartbeatService) buildPrompt() string {
	path := filepath.Join(hs.workspace, "memory", "HEARTBEAT.md")

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return ""
		}
		data = hs.createDefaultTemplate(path)
	}

	content := strings.TrimSpace(string(data))
	if content == "" || isEffectivelyEmpty(content) {
		return ""
	}

	now := time.Now()
	tz, _ := now.Zone()
	return fmt.Sprintf("%s\n\nCurrent time: %s (%s)", content, now.Format("2006-01-02 15:04:05"), tz)
}

func (hs *HeartbeatService) createDefaultTemplate(path string) []byte {
	const template = "# Heartbeat\n\nNo standing instructions yet. Add checklist items here for the agent to review periodically.\n"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logger.WarnCF("heartbeat", "failed to create template directory", map[string]interface{}{"error": err.Error()})
	}
	if err := os.WriteFile(path, []byte(template), 0644); err != nil {
		logger.WarnCF("heartbeat", "failed to create default template", map[string]interface{}{"error": err.Error()})
	}
	return []byte(template)
}

// isEffectivelyEmpty reports whether content has no lines beyond headers
// and empty list bullets.
func isEffectivelyEmpty(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "-" || line == "*" || line == "+" {
			continue
		}
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") || strings.HasPrefix(line, "+ ") {
			if strings.TrimSpace(line[2:]) == "" {
				continue
			}
		}
		return false
	}
	return true
}
