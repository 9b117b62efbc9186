package research

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Pipeline phase tags, written in checkpoint order. A checkpoint is saved
// only after its phase fully completes, so resume always restarts the next
// phase from its beginning.
const (
	PhaseAnalysis     = "analysis"
	PhasePlanning     = "planning"
	PhaseStudies      = "studies"
	PhaseMaster       = "master_synthesis"
	PhaseValidation   = "validation"
	PhaseRefinement   = "refinement"
	PhaseVerification = "verification"
	PhaseStrategy     = "strategy"
	PhaseQA           = "qa"
)

var phaseOrder = []string{
	PhaseAnalysis,
	PhasePlanning,
	PhaseStudies,
	PhaseMaster,
	PhaseValidation,
	PhaseRefinement,
	PhaseVerification,
	PhaseStrategy,
	PhaseQA,
}

// phaseIndex returns the position of a phase tag, -1 when unknown.
func phaseIndex(phase string) int {
	for i, p := range phaseOrder {
		if p == phase {
			return i
		}
	}
	return -1
}

// CheckpointManager persists job snapshots at phase boundaries. Durable
// writes are last-writer-wins per job id; exactly one pipeline instance
// drives a given job at a time.
type CheckpointManager interface {
	Save(ctx context.Context, jobID, phase string, snap *Job) error
	// Load returns the snapshot and the last completed phase tag.
	// ok is false when no checkpoint exists for the job.
	Load(ctx context.Context, jobID string) (phase string, snap *Job, ok bool, err error)
}

// NoopCheckpointManager disables durability; jobs restart from scratch.
type NoopCheckpointManager struct{}

func (NoopCheckpointManager) Save(context.Context, string, string, *Job) error { return nil }
func (NoopCheckpointManager) Load(context.Context, string) (string, *Job, bool, error) {
	return "", nil, false, nil
}

// MemoryCheckpointManager keeps snapshots in process memory. Used by tests
// and by the one-shot CLI where restart durability has no value.
type MemoryCheckpointManager struct {
	mu    sync.Mutex
	saved map[string]memoryCheckpoint
}

type memoryCheckpoint struct {
	phase string
	data  []byte
}

func NewMemoryCheckpointManager() *MemoryCheckpointManager {
	return &MemoryCheckpointManager{saved: make(map[string]memoryCheckpoint)}
}

func (m *MemoryCheckpointManager) Save(_ context.Context, jobID, phase string, snap *Job) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[jobID] = memoryCheckpoint{phase: phase, data: data}
	return nil
}

func (m *MemoryCheckpointManager) Load(_ context.Context, jobID string) (string, *Job, bool, error) {
	m.mu.Lock()
	cp, ok := m.saved[jobID]
	m.mu.Unlock()
	if !ok {
		return "", nil, false, nil
	}
	var snap Job
	if err := json.Unmarshal(cp.data, &snap); err != nil {
		return "", nil, false, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return cp.phase, &snap, true, nil
}

// CheckpointStore is the narrow persistence surface the store-backed manager
// needs; *store.Store satisfies it.
type CheckpointStore interface {
	UpsertJobCheckpoint(ctx context.Context, jobID, phase string, snapshot []byte) error
	GetJobCheckpoint(ctx context.Context, jobID string) (phase string, snapshot []byte, ok bool, err error)
}

// StoreCheckpointManager persists snapshots through the Postgres store.
type StoreCheckpointManager struct {
	store CheckpointStore
}

func NewStoreCheckpointManager(s CheckpointStore) *StoreCheckpointManager {
	return &StoreCheckpointManager{store: s}
}

func (m *StoreCheckpointManager) Save(ctx context.Context, jobID, phase string, snap *Job) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return m.store.UpsertJobCheckpoint(ctx, jobID, phase, data)
}

func (m *StoreCheckpointManager) Load(ctx context.Context, jobID string) (string, *Job, bool, error) {
	phase, data, ok, err := m.store.GetJobCheckpoint(ctx, jobID)
	if err != nil || !ok {
		return "", nil, false, err
	}
	var snap Job
	if err := json.Unmarshal(data, &snap); err != nil {
		return "", nil, false, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return phase, &snap, true, nil
}
