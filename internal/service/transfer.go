package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/langchou/carkeep/internal/config"
	"github.com/langchou/carkeep/internal/models"
	"github.com/langchou/carkeep/internal/state"
)

// ErrSelfHandover 交接目标是发起人自己
var ErrSelfHandover = errors.New("cannot hand over to yourself")

// VehicleStore 转移流程用到的车辆操作
type VehicleStore interface {
	GetByID(ctx context.Context, id string) (*models.Vehicle, error)
	SetOwner(ctx context.Context, id, userID string) error
	Delete(ctx context.Context, id string) error
}

// LogStore 转移流程用到的日志操作
type LogStore interface {
	SetOwnerByVehicleID(ctx context.Context, vehicleID, userID string) error
	DeleteByVehicleID(ctx context.Context, vehicleID string) error
}

// TransferStore 转移意向的持久化
type TransferStore interface {
	Create(ctx context.Context, t *models.Transfer) error
	GetByID(ctx context.Context, id string) (*models.Transfer, error)
	UpdateProgress(ctx context.Context, t *models.Transfer) error
	ListUnfinished(ctx context.Context) ([]*models.Transfer, error)
}

// ObjectStore 转移流程用到的对象存储操作
type ObjectStore interface {
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Move(ctx context.Context, bucket, from, to string) error
	Remove(ctx context.Context, bucket string, paths []string) error
}

// ProgressBroadcaster 进度推送
type ProgressBroadcaster interface {
	BroadcastTransferProgress(progress interface{})
}

// TransferService 车辆删除与交接服务
//
// 每次操作先落一条意向记录，再按固定顺序推进：先改关系数据，
// 再搬对象存储。每步完成后把步骤号写回意向，进程中断后
// ResumePending 从记录的步骤继续，步骤本身都是幂等的。
type TransferService struct {
	cfg       *config.Config
	logger    *zap.Logger
	vehicles  VehicleStore
	logs      LogStore
	transfers TransferStore
	objects   ObjectStore
	hub       ProgressBroadcaster
	machines  *state.Manager
}

// NewTransferService 创建转移服务
func NewTransferService(
	cfg *config.Config,
	logger *zap.Logger,
	vehicles VehicleStore,
	logs LogStore,
	transfers TransferStore,
	objects ObjectStore,
	hub ProgressBroadcaster,
) *TransferService {
	svc := &TransferService{
		cfg:       cfg,
		logger:    logger,
		vehicles:  vehicles,
		logs:      logs,
		transfers: transfers,
		objects:   objects,
		hub:       hub,
	}

	svc.machines = state.NewManager(svc.onStateChange)
	return svc
}

// onStateChange 状态机回调，推送状态变化
func (s *TransferService) onStateChange(transferID, from, to string) {
	s.logger.Info("Transfer state changed",
		zap.String("transfer_id", transferID),
		zap.String("from", from),
		zap.String("to", to))

	if machine, ok := s.machines.Get(transferID); ok && s.hub != nil {
		s.hub.BroadcastTransferProgress(machine.GetProgress())
	}
}

// StartDelete 发起删除流程，落盘意向后在后台执行
func (s *TransferService) StartDelete(ctx context.Context, userID, vehicleID string) (*models.Transfer, error) {
	v, err := s.vehicles.GetByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	t := &models.Transfer{
		Kind:         models.TransferKindDelete,
		VehicleID:    vehicleID,
		Registration: v.Registration,
		FromUserID:   userID,
	}
	if err := s.transfers.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("Delete transfer started",
		zap.String("transfer_id", t.ID),
		zap.String("vehicle_id", vehicleID))

	go s.run(context.Background(), t)
	return t, nil
}

// StartHandover 发起交接流程，目标是自己时直接拒绝，不落任何记录
func (s *TransferService) StartHandover(ctx context.Context, userID, vehicleID, targetUserID string) (*models.Transfer, error) {
	if targetUserID == userID {
		return nil, ErrSelfHandover
	}

	v, err := s.vehicles.GetByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	t := &models.Transfer{
		Kind:         models.TransferKindHandover,
		VehicleID:    vehicleID,
		Registration: v.Registration,
		FromUserID:   userID,
		ToUserID:     targetUserID,
	}
	if err := s.transfers.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("Handover transfer started",
		zap.String("transfer_id", t.ID),
		zap.String("vehicle_id", vehicleID),
		zap.String("to_user_id", targetUserID))

	go s.run(context.Background(), t)
	return t, nil
}

// Status 查询意向记录
func (s *TransferService) Status(ctx context.Context, id string) (*models.Transfer, error) {
	return s.transfers.GetByID(ctx, id)
}

// AllProgress 所有在途转移的进度（WebSocket 初始化数据）
func (s *TransferService) AllProgress() map[string]*state.Progress {
	return s.machines.GetAllProgress()
}

// ResumePending 启动时恢复所有未完成的意向
func (s *TransferService) ResumePending(ctx context.Context) error {
	pending, err := s.transfers.ListUnfinished(ctx)
	if err != nil {
		return err
	}

	for _, t := range pending {
		s.logger.Info("Resuming unfinished transfer",
			zap.String("transfer_id", t.ID),
			zap.String("kind", t.Kind),
			zap.String("state", t.State),
			zap.Int("step", t.Step))
		go s.run(context.Background(), t)
	}
	return nil
}

type stepFunc func(ctx context.Context) error

// run 执行一条意向直至完成或失败
func (s *TransferService) run(ctx context.Context, t *models.Transfer) {
	machine := s.machines.GetOrCreate(t)
	defer s.machines.Remove(t.ID)

	if err := s.execute(ctx, t, machine); err != nil {
		t.LastError = err.Error()
		s.advance(machine, state.EventFail)
		t.State = models.TransferStateFailed
		if uerr := s.transfers.UpdateProgress(ctx, t); uerr != nil {
			s.logger.Error("Failed to persist transfer failure",
				zap.String("transfer_id", t.ID), zap.Error(uerr))
		}
		s.broadcastProgress(machine, t)
		s.logger.Error("Transfer failed",
			zap.String("transfer_id", t.ID),
			zap.Int("step", t.Step),
			zap.Error(err))
		return
	}

	s.logger.Info("Transfer completed",
		zap.String("transfer_id", t.ID),
		zap.String("kind", t.Kind),
		zap.Int("moved_objects", t.MovedObjects),
		zap.Int("failed_objects", t.FailedObjects))
}

// execute 从意向记录的步骤继续推进
func (s *TransferService) execute(ctx context.Context, t *models.Transfer, machine *state.Machine) error {
	var steps []stepFunc
	switch t.Kind {
	case models.TransferKindDelete:
		steps = s.deleteSteps(t)
	case models.TransferKindHandover:
		steps = s.handoverSteps(t)
	default:
		return fmt.Errorf("unknown transfer kind %q", t.Kind)
	}

	for step := t.Step + 1; step <= len(steps); step++ {
		if step == 3 {
			s.advance(machine, state.EventStartMoving)
		}

		if err := steps[step-1](ctx); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		t.Step = step

		if step == 2 {
			s.advance(machine, state.EventRecordsUpdated)
		}
		if step == len(steps) {
			s.advance(machine, state.EventComplete)
		}

		t.State = machine.CurrentState()
		if err := s.transfers.UpdateProgress(ctx, t); err != nil {
			return fmt.Errorf("persist step %d: %w", step, err)
		}
		s.broadcastProgress(machine, t)
	}

	return nil
}

// advance 触发状态机事件，恢复执行时事件可能已经发生过，不可达则跳过
func (s *TransferService) advance(machine *state.Machine, event string) {
	if !machine.CanTransition(event) {
		return
	}
	if err := machine.Trigger(event); err != nil {
		s.logger.Warn("State transition rejected", zap.String("event", event), zap.Error(err))
	}
}

func (s *TransferService) broadcastProgress(machine *state.Machine, t *models.Transfer) {
	machine.UpdateProgress(func(p *state.Progress) {
		p.Step = t.Step
		p.MovedObjects = t.MovedObjects
		p.FailedObjects = t.FailedObjects
		p.LastError = t.LastError
	})
	if s.hub != nil {
		s.hub.BroadcastTransferProgress(machine.GetProgress())
	}
}

// deleteSteps 删除：1 车辆记录 → 2 日志记录 → 3 车辆图片 → 4 日志文件 → 5 日志图片
func (s *TransferService) deleteSteps(t *models.Transfer) []stepFunc {
	imagePrefix := fmt.Sprintf("%s/%s/", t.FromUserID, t.Registration)
	filePrefix := fmt.Sprintf("%s/%s/files/", t.FromUserID, t.VehicleID)
	logImagePrefix := fmt.Sprintf("%s/%s/images/", t.FromUserID, t.VehicleID)

	return []stepFunc{
		func(ctx context.Context) error { return s.vehicles.Delete(ctx, t.VehicleID) },
		func(ctx context.Context) error { return s.logs.DeleteByVehicleID(ctx, t.VehicleID) },
		func(ctx context.Context) error { return s.removePrefix(ctx, t, s.cfg.VehicleImageBucket, imagePrefix) },
		func(ctx context.Context) error { return s.removePrefix(ctx, t, s.cfg.LogbookBucket, filePrefix) },
		func(ctx context.Context) error { return s.removePrefix(ctx, t, s.cfg.LogbookBucket, logImagePrefix) },
	}
}

// handoverSteps 交接：1 车辆归属 → 2 日志归属 → 3 车辆图片 → 4 日志文件 → 5 日志图片
// 对象搬到新车主前缀下，文件名不变
func (s *TransferService) handoverSteps(t *models.Transfer) []stepFunc {
	imageFrom := fmt.Sprintf("%s/%s/", t.FromUserID, t.Registration)
	imageTo := fmt.Sprintf("%s/%s/", t.ToUserID, t.Registration)
	fileFrom := fmt.Sprintf("%s/%s/files/", t.FromUserID, t.VehicleID)
	fileTo := fmt.Sprintf("%s/%s/files/", t.ToUserID, t.VehicleID)
	logImageFrom := fmt.Sprintf("%s/%s/images/", t.FromUserID, t.VehicleID)
	logImageTo := fmt.Sprintf("%s/%s/images/", t.ToUserID, t.VehicleID)

	return []stepFunc{
		func(ctx context.Context) error { return s.vehicles.SetOwner(ctx, t.VehicleID, t.ToUserID) },
		func(ctx context.Context) error { return s.logs.SetOwnerByVehicleID(ctx, t.VehicleID, t.ToUserID) },
		func(ctx context.Context) error { return s.movePrefix(ctx, t, s.cfg.VehicleImageBucket, imageFrom, imageTo) },
		func(ctx context.Context) error { return s.movePrefix(ctx, t, s.cfg.LogbookBucket, fileFrom, fileTo) },
		func(ctx context.Context) error { return s.movePrefix(ctx, t, s.cfg.LogbookBucket, logImageFrom, logImageTo) },
	}
}

// movePrefix 把前缀下的对象全部搬到新前缀
func (s *TransferService) movePrefix(ctx context.Context, t *models.Transfer, bucket, from, to string) error {
	done, failed, err := s.forEachObject(ctx, bucket, from, func(ctx context.Context, objectPath string) error {
		dest := to + strings.TrimPrefix(objectPath, from)
		return s.objects.Move(ctx, bucket, objectPath, dest)
	})
	if err != nil {
		return err
	}

	t.MovedObjects += done
	t.FailedObjects += failed
	return nil
}

// removePrefix 删除前缀下的全部对象
func (s *TransferService) removePrefix(ctx context.Context, t *models.Transfer, bucket, prefix string) error {
	done, failed, err := s.forEachObject(ctx, bucket, prefix, func(ctx context.Context, objectPath string) error {
		return s.objects.Remove(ctx, bucket, []string{objectPath})
	})
	if err != nil {
		return err
	}

	t.MovedObjects += done
	t.FailedObjects += failed
	return nil
}

type objectResult struct {
	path string
	err  error
}

// forEachObject 固定大小的协程池逐个处理前缀下的对象
// 单个对象失败只计数并记录，不影响其余对象；列举失败才算步骤失败。
// 前缀为空时是空操作，恢复执行时已处理过的对象不会再被列出。
func (s *TransferService) forEachObject(ctx context.Context, bucket, prefix string, fn func(ctx context.Context, objectPath string) error) (done, failed int, err error) {
	paths, err := s.objects.List(ctx, bucket, prefix)
	if err != nil {
		return 0, 0, err
	}
	if len(paths) == 0 {
		return 0, 0, nil
	}

	workers := s.cfg.TransferWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	jobs := make(chan string)
	results := make(chan objectResult, len(paths))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for objectPath := range jobs {
				results <- objectResult{path: objectPath, err: fn(ctx, objectPath)}
			}
		}()
	}

	for _, objectPath := range paths {
		jobs <- objectPath
	}
	close(jobs)
	wg.Wait()
	close(results)

	for r := range results {
		if r.err != nil {
			failed++
			s.logger.Warn("Object operation failed",
				zap.String("bucket", bucket),
				zap.String("path", r.path),
				zap.Error(r.err))
			continue
		}
		done++
	}

	return done, failed, nil
}
