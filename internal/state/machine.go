package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/langchou/carkeep/internal/models"
)

// 事件常量
const (
	EventRecordsUpdated = "records_updated"
	EventStartMoving    = "start_moving"
	EventComplete       = "complete"
	EventFail           = "fail"
)

// Progress 转移进度快照
type Progress struct {
	TransferID    string    `json:"transfer_id"`
	Kind          string    `json:"kind"`
	VehicleID     string    `json:"vehicle_id"`
	State         string    `json:"state"`
	Step          int       `json:"step"`
	MovedObjects  int       `json:"moved_objects"`
	FailedObjects int       `json:"failed_objects"`
	LastError     string    `json:"last_error,omitempty"`
	Since         time.Time `json:"since"`
}

// Machine 转移流程状态机
type Machine struct {
	mu            sync.RWMutex
	transferID    string
	fsm           *fsm.FSM
	progress      *Progress
	onStateChange func(transferID, from, to string)
}

// NewMachine 创建状态机
func NewMachine(t *models.Transfer, onStateChange func(transferID, from, to string)) *Machine {
	initialState := t.State
	if initialState == "" {
		initialState = models.TransferStatePending
	}

	m := &Machine{
		transferID:    t.ID,
		onStateChange: onStateChange,
		progress: &Progress{
			TransferID:    t.ID,
			Kind:          t.Kind,
			VehicleID:     t.VehicleID,
			State:         initialState,
			Step:          t.Step,
			MovedObjects:  t.MovedObjects,
			FailedObjects: t.FailedObjects,
			Since:         time.Now(),
		},
	}

	m.fsm = fsm.NewFSM(
		initialState,
		fsm.Events{
			// 正向流程：登记 -> 记录更新 -> 搬运对象 -> 完成
			{Name: EventRecordsUpdated, Src: []string{models.TransferStatePending}, Dst: models.TransferStateRecordsUpdated},
			{Name: EventStartMoving, Src: []string{models.TransferStateRecordsUpdated}, Dst: models.TransferStateMovingObjects},
			{Name: EventComplete, Src: []string{models.TransferStateMovingObjects}, Dst: models.TransferStateCompleted},

			// 任意中间状态都可以失败
			{Name: EventFail, Src: []string{
				models.TransferStatePending,
				models.TransferStateRecordsUpdated,
				models.TransferStateMovingObjects,
			}, Dst: models.TransferStateFailed},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(m.transferID, e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// CurrentState 获取当前状态
func (m *Machine) CurrentState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// GetProgress 获取进度副本
func (m *Machine) GetProgress() *Progress {
	m.mu.RLock()
	defer m.mu.RUnlock()
	progressCopy := *m.progress
	progressCopy.State = m.fsm.Current()
	return &progressCopy
}

// UpdateProgress 更新进度数据
func (m *Machine) UpdateProgress(update func(p *Progress)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	update(m.progress)
}

// Trigger 触发事件
func (m *Machine) Trigger(event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}

	m.progress.State = m.fsm.Current()
	m.progress.Since = time.Now()
	return nil
}

// CanTransition 检查是否可以转换
func (m *Machine) CanTransition(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Can(event)
}

// Manager 状态机管理器
type Manager struct {
	mu       sync.RWMutex
	machines map[string]*Machine
	onChange func(transferID, from, to string)
}

// NewManager 创建管理器
func NewManager(onChange func(transferID, from, to string)) *Manager {
	return &Manager{
		machines: make(map[string]*Machine),
		onChange: onChange,
	}
}

// GetOrCreate 获取或创建状态机
func (m *Manager) GetOrCreate(t *models.Transfer) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if machine, ok := m.machines[t.ID]; ok {
		return machine
	}

	machine := NewMachine(t, m.onChange)
	m.machines[t.ID] = machine
	return machine
}

// Get 获取状态机
func (m *Manager) Get(transferID string) (*Machine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	machine, ok := m.machines[transferID]
	return machine, ok
}

// Remove 移除已结束的状态机
func (m *Manager) Remove(transferID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.machines, transferID)
}

// GetAllProgress 获取所有在途转移的进度
func (m *Manager) GetAllProgress() map[string]*Progress {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make(map[string]*Progress)
	for id, machine := range m.machines {
		all[id] = machine.GetProgress()
	}
	return all
}
