// Package state persists the minimal session snapshot that survives a
// process restart: the access token and the last-known role. The snapshot is
// written under fixed key names and cleared entirely on logout.
package state

// Snapshot is the persisted session state.
type Snapshot struct {
	Subject     string
	AccessToken string
	Role        string
}

// Store reads and writes the snapshot.
type Store interface {
	Save(s Snapshot) error
	Load() (Snapshot, bool, error)
	Clear() error
}

// Memory is a non-persistent Store for tests and for deployments that opt
// out of resume-on-restart.
type Memory struct {
	snap Snapshot
	set  bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Save(s Snapshot) error {
	m.snap = s
	m.set = true
	return nil
}

func (m *Memory) Load() (Snapshot, bool, error) {
	return m.snap, m.set, nil
}

func (m *Memory) Clear() error {
	m.snap = Snapshot{}
	m.set = false
	return nil
}
