package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/tinyclaw/tinyclaw/pkg/logger"
	"github.com/tinyclaw/tinyclaw/pkg/providers"
)

// Session is one conversation's history and rolling summary, keyed by a
// "channel:chatID"-style identifier.
type Session struct {
	Key      string              `json:"key"`
	Messages []providers.Message `json:"messages"`
	Summary  string              `json:"summary"`
}

// SessionManager holds every active Session in memory, optionally
// persisting each to its own JSON file under storageDir. With storageDir
// empty, sessions are in-memory only and Save is a no-op.
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	storageDir  string
}

func NewSessionManager(storageDir string) *SessionManager {
	sm := &SessionManager{
		sessions:   make(map[string]*Session),
		storageDir: storageDir,
	}
	if storageDir != "" {
		sm.loadAll()
	}
	return sm
}

func (sm *SessionManager) loadAll() {
	entries, err := os.ReadDir(sm.storageDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(sm.storageDir, entry.Name()))
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			logger.WarnCF("session", "failed to parse session file", map[string]interface{}{"file": entry.Name(), "error": err.Error()})
			continue
		}
		if s.Key == "" {
			continue
		}
		sm.sessions[s.Key] = &s
	}
}

// GetOrCreate returns the session for key, creating an empty one if it
// does not exist yet. The returned pointer is shared across callers.
func (sm *SessionManager) GetOrCreate(key string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.getOrCreateLocked(key)
}

func (sm *SessionManager) getOrCreateLocked(key string) *Session {
	s, ok := sm.sessions[key]
	if !ok {
		s = &Session{Key: key, Messages: []providers.Message{}}
		sm.sessions[key] = s
	}
	return s
}

// AddMessage appends a plain text message, creating the session if needed.
func (sm *SessionManager) AddMessage(key, role, content string) {
	sm.AddFullMessage(key, providers.Message{Role: role, Content: content})
}

// AddFullMessage appends a message carrying tool calls or a tool_call_id,
// creating the session if needed.
func (sm *SessionManager) AddFullMessage(key string, msg providers.Message) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s := sm.getOrCreateLocked(key)
	s.Messages = append(s.Messages, msg)
}

// GetHistory returns a copy of a session's message slice, so callers can
// change or reorder the returned messages' fields without affecting stored
// state. The copy is shallow: each message's ToolCalls slice is shared with
// the stored message. Returns a non-nil empty slice for an unknown key.
func (sm *SessionManager) GetHistory(key string) []providers.Message {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, ok := sm.sessions[key]
	if !ok {
		return []providers.Message{}
	}
	out := make([]providers.Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

func (sm *SessionManager) GetSummary(key string) string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[key]
	if !ok {
		return ""
	}
	return s.Summary
}

func (sm *SessionManager) SetSummary(key, summary string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[key]
	if !ok {
		return
	}
	s.Summary = summary
}

// TruncateHistory keeps only the last keep messages. A no-op for an
// unknown key or when history already has keep or fewer messages.
func (sm *SessionManager) TruncateHistory(key string, keep int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[key]
	if !ok || len(s.Messages) <= keep {
		return
	}
	s.Messages = s.Messages[len(s.Messages)-keep:]
}

// Save persists a session to storageDir as JSON. A no-op, returning nil,
// when the manager has no storage directory configured.
func (sm *SessionManager) Save(session *Session) error {
	if sm.storageDir == "" || session == nil {
		return nil
	}
	if err := os.MkdirAll(sm.storageDir, 0755); err != nil {
		return err
	}

	sm.mu.RLock()
	data, err := json.MarshalIndent(session, "", "  ")
	sm.mu.RUnlock()
	if err != nil {
		return err
	}

	path := filepath.Join(sm.storageDir, sanitizeFilename(session.Key)+".json")
	return os.WriteFile(path, data, 0644)
}

func sanitizeFilename(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
