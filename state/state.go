// state/state.go
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"apex_hunter_go/capital"
	"apex_hunter_go/logs"
	"apex_hunter_go/position"
	"apex_hunter_go/risk"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StateManagerInterface is what the engine loop needs from persistence.
type StateManagerInterface interface {
	// GetFullState returns a copy of the last saved state for startup restore.
	GetFullState() AppState
	// Save replaces the persisted state.
	Save(st AppState) error
}

// AppState is the top-level structure persisted to engine_state.json.
type AppState struct {
	SavedAt   time.Time                       `json:"saved_at"`
	Accounts  map[string]capital.Snapshot     `json:"accounts"`
	Risk      map[string]risk.ManagerSnapshot `json:"risk"`
	Positions []position.Position             `json:"positions"`
}

// Empty reports whether nothing has been saved yet.
func (s AppState) Empty() bool {
	return len(s.Accounts) == 0 && len(s.Risk) == 0 && len(s.Positions) == 0
}

func (s AppState) clone() AppState {
	out := AppState{
		SavedAt:   s.SavedAt,
		Accounts:  make(map[string]capital.Snapshot, len(s.Accounts)),
		Risk:      make(map[string]risk.ManagerSnapshot, len(s.Risk)),
		Positions: append([]position.Position(nil), s.Positions...),
	}
	for k, v := range s.Accounts {
		v.RecentTrades = append([]float64(nil), v.RecentTrades...)
		out.Accounts[k] = v
	}
	for k, v := range s.Risk {
		out.Risk[k] = v
	}
	return out
}

// StateManager is the file implementation of StateManagerInterface.
type StateManager struct {
	mu       sync.RWMutex
	filePath string
	state    AppState
}

var _ StateManagerInterface = (*StateManager)(nil)

// NewStateManager loads existing state, or starts empty if the file does not exist.
func NewStateManager(filePath string) (*StateManager, error) {
	sm := &StateManager{filePath: filePath}

	if err := sm.load(); err != nil {
		if os.IsNotExist(err) {
			logs.Infof("[State] State file not found at %s. Starting with a fresh state.", filePath)
			if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
			return sm, nil
		}
		return nil, fmt.Errorf("failed to load initial state: %w", err)
	}
	return sm, nil
}

// save performs an atomic write. Caller holds the lock.
func (sm *StateManager) save() error {
	data, err := json.MarshalIndent(sm.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state for saving: %w", err)
	}

	tmpFilePath := sm.filePath + ".tmp"
	if err := os.WriteFile(tmpFilePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write to temporary state file: %w", err)
	}
	return os.Rename(tmpFilePath, sm.filePath)
}

func (sm *StateManager) load() error {
	data, err := os.ReadFile(sm.filePath)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &sm.state)
}

func (sm *StateManager) GetFullState() AppState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.clone()
}

func (sm *StateManager) Save(st AppState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.state = st.clone()
	return sm.save()
}
