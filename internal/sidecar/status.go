package sidecar

import (
	"context"
	"sync"

	"github.com/chainforge/core/internal/timechain"
	"github.com/looplab/fsm"
)

// BlockValidationStatus is spec.md §3/§4.7's per-(height-or-fork-hash)
// block validation state.
type BlockValidationStatus string

const (
	StatusUnvalidated    BlockValidationStatus = "unvalidated"
	StatusAssumedValid   BlockValidationStatus = "assumed_valid"
	StatusStructureValid BlockValidationStatus = "structure_valid"
	StatusValidated      BlockValidationStatus = "validated"
)

const (
	eventAssume    = "assume"
	eventStructure = "structure"
	eventValidate  = "validate"
	eventReset     = "reset"
)

// statusMachine wraps a looplab/fsm.FSM gating the legal transitions
// between BlockValidationStatus values, grounded on the teacher's
// services/blockchain/Server.go finiteStateMachine field (the same
// library, used there for node-lifecycle state rather than per-block
// status).
type statusMachine struct {
	mu  sync.Mutex
	fsm *fsm.FSM
}

func newStatusMachine() *statusMachine {
	m := &statusMachine{}
	m.fsm = fsm.NewFSM(
		string(StatusUnvalidated),
		fsm.Events{
			{Name: eventAssume, Src: []string{string(StatusUnvalidated)}, Dst: string(StatusAssumedValid)},
			{Name: eventStructure, Src: []string{string(StatusUnvalidated), string(StatusAssumedValid)}, Dst: string(StatusStructureValid)},
			{Name: eventValidate, Src: []string{string(StatusStructureValid), string(StatusAssumedValid)}, Dst: string(StatusValidated)},
			{Name: eventReset, Src: []string{string(StatusUnvalidated), string(StatusAssumedValid), string(StatusStructureValid), string(StatusValidated)}, Dst: string(StatusUnvalidated)},
		},
		fsm.Callbacks{},
	)
	return m
}

func (m *statusMachine) current() BlockValidationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return BlockValidationStatus(m.fsm.Current())
}

func (m *statusMachine) fire(event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsm.Event(context.Background(), event)
}

// StatusSidecar tracks BlockValidationStatus per chain height, one
// statusMachine per height so transitions are validated independently
// per block, backed by a Keyframe for fork-tree promotion.
type StatusSidecar struct {
	mu       sync.Mutex
	machines map[int32]*statusMachine
	keyframe *Keyframe[BlockValidationStatus]
}

// NewStatusSidecar builds an empty status sidecar.
func NewStatusSidecar() *StatusSidecar {
	return &StatusSidecar{
		machines: make(map[int32]*statusMachine),
		keyframe: NewKeyframe[BlockValidationStatus](),
	}
}

func (s *StatusSidecar) machineFor(height int32) *statusMachine {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[height]
	if !ok {
		m = newStatusMachine()
		s.machines[height] = m
	}
	return m
}

// Get returns the status at height, defaulting to Unvalidated.
func (s *StatusSidecar) Get(height int32) BlockValidationStatus {
	if v, ok := s.keyframe.Get(height); ok {
		return v
	}
	return StatusUnvalidated
}

// MarkAssumedValid transitions height to AssumedValid.
func (s *StatusSidecar) MarkAssumedValid(height int32) error {
	return s.transition(height, eventAssume, StatusAssumedValid)
}

// MarkStructureValid transitions height to StructureValid.
func (s *StatusSidecar) MarkStructureValid(height int32) error {
	return s.transition(height, eventStructure, StatusStructureValid)
}

// MarkValidated transitions height to Validated.
func (s *StatusSidecar) MarkValidated(height int32) error {
	return s.transition(height, eventValidate, StatusValidated)
}

func (s *StatusSidecar) transition(height int32, event string, want BlockValidationStatus) error {
	m := s.machineFor(height)
	if err := m.fire(event); err != nil {
		return err
	}
	s.keyframe.Set(height, want)
	return nil
}

// AddSync implements timechain.Sidecar by delegating to the
// underlying Keyframe's reorg-promotion logic.
func (s *StatusSidecar) AddSync(e timechain.AddSyncEvent) {
	s.keyframe.AddSync(e)
}
