package coordination

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// Role names the coordination function a node performs.
type Role uint8

const (
	RoleSender Role = iota + 1
	RoleReceiver
	RoleRelay
)

func (r Role) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleReceiver:
		return "receiver"
	case RoleRelay:
		return "relay"
	}
	return "unknown"
}

// State is the restricted record that survives a suspend/resume cycle. It is
// written immediately before the power controller suspends the node and
// reloaded at the fixed resume entry point; everything else is rebuilt from
// configuration. The suspend primitive blocks all execution, so the record
// has a single writer by construction.
type State struct {
	Role             Role      `yaml:"role"`
	Machine          uint8     `yaml:"machine"`
	IntervalSeconds  uint16    `yaml:"interval_seconds"`
	WindowSeconds    uint16    `yaml:"window_seconds"`
	CycleStart       time.Time `yaml:"cycle_start"`
	LastSentAt       time.Time `yaml:"last_sent_at"`
	LastSentChecksum uint8     `yaml:"last_sent_checksum"`
	SendCounter      uint32    `yaml:"send_counter"`
}

// Store persists the State record across suspend cycles.
type Store interface {
	Save(st *State) error
	Load() (*State, error)
}

// FileStore keeps the State record in a YAML file, the stand-in for the
// platform's retained-memory region.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

func (s *FileStore) Save(st *State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return oops.Wrapf(err, "marshaling state")
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return oops.Wrapf(err, "writing state file %s", s.Path)
	}
	return nil
}

// Load returns (nil, nil) when no state has been saved yet, which is the
// normal cold-boot case.
func (s *FileStore) Load() (*State, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Wrapf(err, "reading state file %s", s.Path)
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, oops.Wrapf(err, "parsing state file %s", s.Path)
	}
	return &st, nil
}
