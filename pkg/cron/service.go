package cron

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyclaw/tinyclaw/pkg/logger"
	"github.com/tinyclaw/tinyclaw/pkg/utils"
)

// CronSchedule describes when a job runs: a fixed interval (every), a
// one-shot timestamp (at), or a cron expression (cron).
type CronSchedule struct {
	Kind    string `json:"kind"`
	EveryMS *int64 `json:"everyMs,omitempty"`
	AtMS    *int64 `json:"atMs,omitempty"`
	Expr    string `json:"expr,omitempty"`
}

// CronPayload is what a job does when it fires: a message, optionally
// delivered directly to a channel/chat rather than routed through the
// agent loop.
type CronPayload struct {
	Message string `json:"message"`
	Deliver bool   `json:"deliver,omitempty"`
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`
}

type CronJobState struct {
	NextRunAtMS *int64 `json:"nextRunAtMs,omitempty"`
}

type CronJob struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Enabled        bool         `json:"enabled"`
	DeleteAfterRun bool         `json:"deleteAfterRun"`
	Schedule       CronSchedule `json:"schedule"`
	Payload        CronPayload  `json:"payload"`
	State          CronJobState `json:"state"`
	CreatedAtMS    int64        `json:"createdAtMs"`
	UpdatedAtMS    int64        `json:"updatedAtMs"`
}

type cronStore struct {
	Version int       `json:"version"`
	Jobs    []CronJob `json:"jobs"`
}

// ExecuteFunc runs a due job and returns a human-readable result.
type ExecuteFunc func(job *CronJob) (string, error)

const defaultTickInterval = 250 * time.Millisecond

// CronService owns a JSON-persisted set of scheduled jobs and a ticker
// loop that fires ExecuteFunc for every job whose NextRunAtMS has passed.
type CronService struct {
	storePath    string
	store        *cronStore
	execute      ExecuteFunc
	tickInterval time.Duration
	mu           sync.RWMutex
	running      bool
	stopChan     chan struct{}
}

func NewCronService(storePath string, execute ExecuteFunc) *CronService {
	cs := &CronService{
		storePath:    storePath,
		execute:      execute,
		tickInterval: defaultTickInterval,
	}
	cs.loadStore()
	return cs
}

// SetTickInterval overrides how often the scheduler checks for due jobs.
// Must be called before Start.
func (cs *CronService) SetTickInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.tickInterval = d
}

func (cs *CronService) loadStore() {
	cs.store = &cronStore{Version: 1, Jobs: []CronJob{}}

	data, err := os.ReadFile(cs.storePath)
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, cs.store)
}

func (cs *CronService) saveStoreLocked() {
	if cs.storePath == "" {
		return
	}
	dir := filepath.Dir(cs.storePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.ErrorCF("cron", "failed to create store directory", map[string]interface{}{"error": err.Error()})
		return
	}
	data, err := json.MarshalIndent(cs.store, "", "  ")
	if err != nil {
		logger.ErrorCF("cron", "failed to marshal store", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := os.WriteFile(cs.storePath, data, 0644); err != nil {
		logger.ErrorCF("cron", "failed to write store", map[string]interface{}{"error": err.Error()})
	}
}

// AddJob creates and persists a new enabled job, computing its first run
// time immediately.
func (cs *CronService) AddJob(name string, schedule CronSchedule, message string, deliver bool, channel, to string) (*CronJob, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	now := time.Now().UnixMilli()
	job := CronJob{
		ID:       utils.RandHex(8),
		Name:     name,
		Enabled:  true,
		Schedule: schedule,
		Payload: CronPayload{
			Message: message,
			Deliver: deliver,
			Channel: channel,
			To:      to,
		},
		CreatedAtMS: now,
		UpdatedAtMS: now,
	}
	if schedule.Kind == "at" {
		job.DeleteAfterRun = true
	}
	job.State.NextRunAtMS = cs.computeNextRun(&job.Schedule, now)

	cs.store.Jobs = append(cs.store.Jobs, job)
	cs.saveStoreLocked()

	created := cs.store.Jobs[len(cs.store.Jobs)-1]
	return &created, nil
}

func (cs *CronService) RemoveJob(jobID string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	before := len(cs.store.Jobs)
	jobs := make([]CronJob, 0, before)
	for _, job := range cs.store.Jobs {
		if job.ID != jobID {
			jobs = append(jobs, job)
		}
	}
	cs.store.Jobs = jobs
	removed := len(jobs) < before
	if removed {
		cs.saveStoreLocked()
	}
	return removed
}

// EnableJob toggles a job's enabled state, recomputing or clearing its
// next-run time accordingly. Returns nil if the job does not exist.
func (cs *CronService) EnableJob(jobID string, enabled bool) *CronJob {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for i := range cs.store.Jobs {
		if cs.store.Jobs[i].ID != jobID {
			continue
		}
		job := &cs.store.Jobs[i]
		job.Enabled = enabled
		if enabled {
			job.State.NextRunAtMS = cs.computeNextRun(&job.Schedule, time.Now().UnixMilli())
		} else {
			job.State.NextRunAtMS = nil
		}
		job.UpdatedAtMS = time.Now().UnixMilli()
		cs.saveStoreLocked()
		result := *job
		return &result
	}
	return nil
}

func (cs *CronService) ListJobs(includeDisabled bool) []CronJob {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if includeDisabled {
		result := make([]CronJob, len(cs.store.Jobs))
		copy(result, cs.store.Jobs)
		return result
	}

	result := make([]CronJob, 0, len(cs.store.Jobs))
	for _, job := range cs.store.Jobs {
		if job.Enabled {
			result = append(result, job)
		}
	}
	return result
}

func (cs *CronService) Status() map[string]interface{} {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return map[string]interface{}{
		"jobs":    len(cs.store.Jobs),
		"enabled": cs.running,
	}
}

// computeNextRun returns the next UnixMilli timestamp a schedule should
// fire at, or nil if it has no future run (a past "at" job, a disabled
// interval, or an invalid cron expression).
func (cs *CronService) computeNextRun(schedule *CronSchedule, nowMS int64) *int64 {
	switch schedule.Kind {
	case "every":
		if schedule.EveryMS == nil || *schedule.EveryMS <= 0 {
			return nil
		}
		next := nowMS + *schedule.EveryMS
		return &next

	case "at":
		if schedule.AtMS == nil || *schedule.AtMS <= nowMS {
			return nil
		}
		at := *schedule.AtMS
		return &at

	case "cron":
		if schedule.Expr == "" {
			return nil
		}
		next, err := gronx.NextTickAfter(schedule.Expr, time.UnixMilli(nowMS), false)
		if err != nil {
			logger.WarnCF("cron", "invalid cron expression", map[string]interface{}{"expr": schedule.Expr, "error": err.Error()})
			return nil
		}
		ms := next.UnixMilli()
		return &ms

	default:
		return nil
	}
}

// Start begins the tick loop. Idempotent: calling Start while already
// running is a no-op. Every start recomputes next-run times from the
// current time, so a firing missed while stopped is not replayed: an
// interval or cron job waits for its next slot, and a one-shot "at" job
// whose time has passed gets no next run.
func (cs *CronService) Start() error {
	cs.mu.Lock()
	if cs.running {
		cs.mu.Unlock()
		return nil
	}

	now := time.Now().UnixMilli()
	for i := range cs.store.Jobs {
		job := &cs.store.Jobs[i]
		if job.Enabled {
			job.State.NextRunAtMS = cs.computeNextRun(&job.Schedule, now)
		}
	}
	cs.saveStoreLocked()

	cs.running = true
	cs.stopChan = make(chan struct{})
	stopChan := cs.stopChan
	tick := cs.tickInterval
	cs.mu.Unlock()

	go cs.runLoop(stopChan, tick)
	return nil
}

func (cs *CronService) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.running {
		return
	}
	cs.running = false
	close(cs.stopChan)
	cs.stopChan = nil
}

func (cs *CronService) runLoop(stopChan chan struct{}, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			cs.checkJobs()
		}
	}
}

func (cs *CronService) checkJobs() {
	now := time.Now().UnixMilli()

	cs.mu.Lock()
	var due []string
	for _, job := range cs.store.Jobs {
		if job.Enabled && job.State.NextRunAtMS != nil && *job.State.NextRunAtMS <= now {
			due = append(due, job.ID)
		}
	}
	cs.mu.Unlock()

	for _, id := range due {
		cs.runJob(id)
	}
}

func (cs *CronService) runJob(jobID string) {
	cs.mu.RLock()
	var jobCopy *CronJob
	for _, job := range cs.store.Jobs {
		if job.ID == jobID {
			j := job
			jobCopy = &j
			break
		}
	}
	cs.mu.RUnlock()
	if jobCopy == nil {
		return
	}

	var execErr error
	if cs.execute != nil {
		_, execErr = cs.execute(jobCopy)
	}
	if execErr != nil {
		logger.WarnCF("cron", "job execution failed", map[string]interface{}{"job_id": jobID, "error": execErr.Error()})
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	for i := range cs.store.Jobs {
		if cs.store.Jobs[i].ID != jobID {
			continue
		}
		job := &cs.store.Jobs[i]
		now := time.Now().UnixMilli()
		job.UpdatedAtMS = now

		if job.Schedule.Kind == "at" {
			if job.DeleteAfterRun {
				cs.store.Jobs = append(cs.store.Jobs[:i], cs.store.Jobs[i+1:]...)
			} else {
				job.Enabled = false
				job.State.NextRunAtMS = nil
			}
		} else {
			job.State.NextRunAtMS = cs.computeNextRun(&job.Schedule, now)
		}
		break
	}
	cs.saveStoreLocked()
}
