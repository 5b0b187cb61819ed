package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/sidkik/linksync/pkg/errors"
	"github.com/sidkik/linksync/pkg/paths"
)

// statePath is where state that survives restarts is stored. It's a variable
// so that it can be mocked in tests.
var statePath = paths.NormalizeSlashes(filepath.Join(xdg.StateHome, "linksync", "state.yaml"))

// State is the process-wide state shared by every link.
type State struct {
	Version string `json:"version,omitempty"`

	// LastExecuted is when any link was last executed.
	LastExecuted time.Time `json:"lastExecuted"`
}

// GetStatePath returns the path to the state file.
func GetStatePath() string {
	return statePath
}

func (s State) getVersion() string {
	return s.Version
}

// ParseState reads the persisted state. The zero State is returned if
// nothing has been persisted yet.
func ParseState() (State, error) {
	state := State{Version: CurrentVersion}
	if err := parseConfig(statePath, &state); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return State{Version: CurrentVersion}, nil
		}
		return State{}, errors.WithContext(err, "parse")
	}

	state.LastExecuted = state.LastExecuted.UTC()
	return state, nil
}

// WriteState persists the state.
func WriteState(state State) error {
	if state.Version == "" {
		state.Version = CurrentVersion
	}
	return writeConfig(statePath, state)
}

// RecordLastExecuted persists the time when a link was last executed.
func RecordLastExecuted(t time.Time) error {
	state, err := ParseState()
	if err != nil {
		return errors.WithContext(err, "read state")
	}

	state.LastExecuted = t.UTC()
	return errors.WithContext(WriteState(state), "write state")
}

// LastExecuted returns when any link was last executed, or the zero time if
// it's unknown.
func LastExecuted() time.Time {
	state, err := ParseState()
	if err != nil {
		return time.Time{}
	}
	return state.LastExecuted
}
