package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/carkeep/internal/config"
	"github.com/langchou/carkeep/internal/models"
	"github.com/langchou/carkeep/internal/repository"
)

type fakeVehicleStore struct {
	mu           sync.Mutex
	vehicles     map[string]*models.Vehicle
	setOwnerCall int
	ownerErr     error
}

func (f *fakeVehicleStore) GetByID(_ context.Context, id string) (*models.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *v
	return &copied, nil
}

func (f *fakeVehicleStore) SetOwner(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setOwnerCall++
	if f.ownerErr != nil {
		return f.ownerErr
	}
	if v, ok := f.vehicles[id]; ok {
		v.UserID = userID
	}
	return nil
}

func (f *fakeVehicleStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vehicles, id)
	return nil
}

type fakeLogStore struct {
	mu     sync.Mutex
	owners map[string]string // vehicleID -> owner
}

func (f *fakeLogStore) SetOwnerByVehicleID(_ context.Context, vehicleID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[vehicleID] = userID
	return nil
}

func (f *fakeLogStore) DeleteByVehicleID(_ context.Context, vehicleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.owners, vehicleID)
	return nil
}

type fakeTransferStore struct {
	mu   sync.Mutex
	rows map[string]*models.Transfer
}

func newFakeTransferStore() *fakeTransferStore {
	return &fakeTransferStore{rows: make(map[string]*models.Transfer)}
}

func (f *fakeTransferStore) Create(_ context.Context, t *models.Transfer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == "" {
		t.ID = "transfer-" + t.VehicleID
	}
	if t.State == "" {
		t.State = models.TransferStatePending
	}
	copied := *t
	f.rows[t.ID] = &copied
	return nil
}

func (f *fakeTransferStore) GetByID(_ context.Context, id string) (*models.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeTransferStore) UpdateProgress(_ context.Context, t *models.Transfer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *t
	f.rows[t.ID] = &copied
	return nil
}

func (f *fakeTransferStore) ListUnfinished(_ context.Context) ([]*models.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Transfer
	for _, row := range f.rows {
		if row.State != models.TransferStateCompleted && row.State != models.TransferStateFailed {
			copied := *row
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeObjectStore struct {
	mu        sync.Mutex
	objects   map[string]map[string]bool // bucket -> paths
	failPaths map[string]bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects:   make(map[string]map[string]bool),
		failPaths: make(map[string]bool),
	}
}

func (f *fakeObjectStore) put(bucket, path string) {
	if f.objects[bucket] == nil {
		f.objects[bucket] = make(map[string]bool)
	}
	f.objects[bucket][path] = true
}

func (f *fakeObjectStore) paths(bucket string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for p := range f.objects[bucket] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (f *fakeObjectStore) List(_ context.Context, bucket, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for p := range f.objects[bucket] {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeObjectStore) trackConcurrency() func() {
	n := f.inFlight.Add(1)
	for {
		max := f.maxInFlight.Load()
		if n <= max || f.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeObjectStore) Move(_ context.Context, bucket, from, to string) error {
	defer f.trackConcurrency()()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPaths[from] {
		return errors.New("simulated move failure")
	}
	if !f.objects[bucket][from] {
		return errors.New("source object missing")
	}
	delete(f.objects[bucket], from)
	f.put(bucket, to)
	return nil
}

func (f *fakeObjectStore) Remove(_ context.Context, bucket string, paths []string) error {
	defer f.trackConcurrency()()

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		if f.failPaths[p] {
			return errors.New("simulated remove failure")
		}
		delete(f.objects[bucket], p)
	}
	return nil
}

type fakeHub struct {
	mu     sync.Mutex
	events []interface{}
}

func (f *fakeHub) BroadcastTransferProgress(progress interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, progress)
}

func (f *fakeHub) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type transferFixture struct {
	svc       *TransferService
	vehicles  *fakeVehicleStore
	logs      *fakeLogStore
	transfers *fakeTransferStore
	objects   *fakeObjectStore
	hub       *fakeHub
}

func newTransferFixture() *transferFixture {
	cfg := &config.Config{
		VehicleImageBucket: "vehicleimages",
		LogbookBucket:      "vehiclelogbooks",
		ProfileBucket:      "profile",
		TransferWorkers:    4,
	}

	vehicles := &fakeVehicleStore{vehicles: map[string]*models.Vehicle{
		"v1": {ID: "v1", Registration: "AB12CDE", UserID: "alice"},
	}}
	logs := &fakeLogStore{owners: map[string]string{"v1": "alice"}}
	transfers := newFakeTransferStore()
	objects := newFakeObjectStore()
	hub := &fakeHub{}

	svc := NewTransferService(cfg, zap.NewNop(), vehicles, logs, transfers, objects, hub)

	return &transferFixture{
		svc:       svc,
		vehicles:  vehicles,
		logs:      logs,
		transfers: transfers,
		objects:   objects,
		hub:       hub,
	}
}

func (fx *transferFixture) seedObjects() {
	fx.objects.put("vehicleimages", "alice/AB12CDE/1700000000000.jpeg")
	fx.objects.put("vehicleimages", "alice/AB12CDE/1700000000001.jpeg")
	fx.objects.put("vehiclelogbooks", "alice/v1/files/1700000000002.pdf")
	fx.objects.put("vehiclelogbooks", "alice/v1/images/1700000000003.jpeg")
}

func TestHandoverMovesRecordsAndObjects(t *testing.T) {
	fx := newTransferFixture()
	fx.seedObjects()
	ctx := context.Background()

	tr := &models.Transfer{
		Kind:         models.TransferKindHandover,
		VehicleID:    "v1",
		Registration: "AB12CDE",
		FromUserID:   "alice",
		ToUserID:     "bob",
	}
	if err := fx.transfers.Create(ctx, tr); err != nil {
		t.Fatalf("create transfer: %v", err)
	}

	fx.svc.run(ctx, tr)

	row, err := fx.transfers.GetByID(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if row.State != models.TransferStateCompleted {
		t.Fatalf("expected completed, got %s (last_error=%q)", row.State, row.LastError)
	}
	if row.Step != 5 || row.MovedObjects != 4 || row.FailedObjects != 0 {
		t.Fatalf("unexpected progress: step=%d moved=%d failed=%d", row.Step, row.MovedObjects, row.FailedObjects)
	}

	v, err := fx.vehicles.GetByID(ctx, "v1")
	if err != nil {
		t.Fatalf("get vehicle: %v", err)
	}
	if v.UserID != "bob" {
		t.Fatalf("expected vehicle owner bob, got %s", v.UserID)
	}
	if fx.logs.owners["v1"] != "bob" {
		t.Fatalf("expected log owner bob, got %s", fx.logs.owners["v1"])
	}

	// 对象全部搬到新车主前缀下，文件名不变
	wantImages := []string{"bob/AB12CDE/1700000000000.jpeg", "bob/AB12CDE/1700000000001.jpeg"}
	gotImages := fx.objects.paths("vehicleimages")
	if len(gotImages) != 2 || gotImages[0] != wantImages[0] || gotImages[1] != wantImages[1] {
		t.Fatalf("unexpected vehicle images: %v", gotImages)
	}
	wantLogbooks := []string{"bob/v1/files/1700000000002.pdf", "bob/v1/images/1700000000003.jpeg"}
	gotLogbooks := fx.objects.paths("vehiclelogbooks")
	if len(gotLogbooks) != 2 || gotLogbooks[0] != wantLogbooks[0] || gotLogbooks[1] != wantLogbooks[1] {
		t.Fatalf("unexpected logbook objects: %v", gotLogbooks)
	}

	if fx.hub.count() == 0 {
		t.Fatal("expected progress broadcasts")
	}
}

func TestHandoverToSelfIsRejected(t *testing.T) {
	fx := newTransferFixture()
	ctx := context.Background()

	_, err := fx.svc.StartHandover(ctx, "alice", "v1", "alice")
	if !errors.Is(err, ErrSelfHandover) {
		t.Fatalf("expected ErrSelfHandover, got %v", err)
	}

	// 不落任何意向记录，也不动数据
	if len(fx.transfers.rows) != 0 {
		t.Fatalf("expected no intent rows, got %d", len(fx.transfers.rows))
	}
	v, _ := fx.vehicles.GetByID(ctx, "v1")
	if v.UserID != "alice" {
		t.Fatalf("vehicle owner changed to %s", v.UserID)
	}
}

func TestHandoverUnknownVehicle(t *testing.T) {
	fx := newTransferFixture()

	_, err := fx.svc.StartHandover(context.Background(), "alice", "missing", "bob")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesRecordsAndObjects(t *testing.T) {
	fx := newTransferFixture()
	fx.seedObjects()
	ctx := context.Background()

	tr := &models.Transfer{
		Kind:         models.TransferKindDelete,
		VehicleID:    "v1",
		Registration: "AB12CDE",
		FromUserID:   "alice",
	}
	if err := fx.transfers.Create(ctx, tr); err != nil {
		t.Fatalf("create transfer: %v", err)
	}

	fx.svc.run(ctx, tr)

	row, _ := fx.transfers.GetByID(ctx, tr.ID)
	if row.State != models.TransferStateCompleted {
		t.Fatalf("expected completed, got %s (last_error=%q)", row.State, row.LastError)
	}

	if _, err := fx.vehicles.GetByID(ctx, "v1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected vehicle deleted, got %v", err)
	}
	if _, ok := fx.logs.owners["v1"]; ok {
		t.Fatal("expected logs deleted")
	}
	if got := fx.objects.paths("vehicleimages"); len(got) != 0 {
		t.Fatalf("expected empty vehicleimages, got %v", got)
	}
	if got := fx.objects.paths("vehiclelogbooks"); len(got) != 0 {
		t.Fatalf("expected empty vehiclelogbooks, got %v", got)
	}
}

func TestDeleteWithNoObjectsOrLogs(t *testing.T) {
	fx := newTransferFixture()
	delete(fx.logs.owners, "v1")
	ctx := context.Background()

	tr := &models.Transfer{
		Kind:         models.TransferKindDelete,
		VehicleID:    "v1",
		Registration: "AB12CDE",
		FromUserID:   "alice",
	}
	fx.transfers.Create(ctx, tr)

	fx.svc.run(ctx, tr)

	row, _ := fx.transfers.GetByID(ctx, tr.ID)
	if row.State != models.TransferStateCompleted {
		t.Fatalf("expected completed, got %s (last_error=%q)", row.State, row.LastError)
	}
	if row.MovedObjects != 0 || row.FailedObjects != 0 {
		t.Fatalf("empty prefixes must be a no-op, moved=%d failed=%d", row.MovedObjects, row.FailedObjects)
	}
	if _, err := fx.vehicles.GetByID(ctx, "v1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected vehicle deleted, got %v", err)
	}
}

func TestResumeSkipsCompletedSteps(t *testing.T) {
	fx := newTransferFixture()
	fx.seedObjects()
	ctx := context.Background()

	// 模拟在步骤 2 之后中断：关系数据已经改完，对象还没搬
	fx.vehicles.vehicles["v1"].UserID = "bob"
	fx.logs.owners["v1"] = "bob"
	tr := &models.Transfer{
		ID:           "resume-1",
		Kind:         models.TransferKindHandover,
		VehicleID:    "v1",
		Registration: "AB12CDE",
		FromUserID:   "alice",
		ToUserID:     "bob",
		State:        models.TransferStateRecordsUpdated,
		Step:         2,
	}
	if err := fx.transfers.Create(ctx, tr); err != nil {
		t.Fatalf("create transfer: %v", err)
	}

	fx.svc.run(ctx, tr)

	if fx.vehicles.setOwnerCall != 0 {
		t.Fatalf("relational steps must not repeat, SetOwner called %d times", fx.vehicles.setOwnerCall)
	}

	row, _ := fx.transfers.GetByID(ctx, "resume-1")
	if row.State != models.TransferStateCompleted || row.MovedObjects != 4 {
		t.Fatalf("unexpected resume result: state=%s moved=%d", row.State, row.MovedObjects)
	}
	if got := fx.objects.paths("vehicleimages"); len(got) != 2 || !strings.HasPrefix(got[0], "bob/") {
		t.Fatalf("expected images under bob/, got %v", got)
	}
}

func TestObjectFailureIsCountedButDoesNotAbort(t *testing.T) {
	fx := newTransferFixture()
	fx.seedObjects()
	fx.objects.failPaths["alice/AB12CDE/1700000000000.jpeg"] = true
	ctx := context.Background()

	tr := &models.Transfer{
		Kind:         models.TransferKindHandover,
		VehicleID:    "v1",
		Registration: "AB12CDE",
		FromUserID:   "alice",
		ToUserID:     "bob",
	}
	fx.transfers.Create(ctx, tr)

	fx.svc.run(ctx, tr)

	row, _ := fx.transfers.GetByID(ctx, tr.ID)
	if row.State != models.TransferStateCompleted {
		t.Fatalf("expected completed despite object failure, got %s", row.State)
	}
	if row.MovedObjects != 3 || row.FailedObjects != 1 {
		t.Fatalf("unexpected counts: moved=%d failed=%d", row.MovedObjects, row.FailedObjects)
	}

	// 失败的对象留在原处
	gotImages := fx.objects.paths("vehicleimages")
	found := false
	for _, p := range gotImages {
		if p == "alice/AB12CDE/1700000000000.jpeg" {
			found = true
		}
	}
	if !found {
		t.Fatalf("failed object should stay at source, got %v", gotImages)
	}
}

func TestRelationalFailureMarksTransferFailed(t *testing.T) {
	fx := newTransferFixture()
	fx.seedObjects()
	fx.vehicles.ownerErr = errors.New("db down")
	ctx := context.Background()

	tr := &models.Transfer{
		Kind:         models.TransferKindHandover,
		VehicleID:    "v1",
		Registration: "AB12CDE",
		FromUserID:   "alice",
		ToUserID:     "bob",
	}
	fx.transfers.Create(ctx, tr)

	fx.svc.run(ctx, tr)

	row, _ := fx.transfers.GetByID(ctx, tr.ID)
	if row.State != models.TransferStateFailed {
		t.Fatalf("expected failed, got %s", row.State)
	}
	if row.Step != 0 {
		t.Fatalf("expected no step recorded, got %d", row.Step)
	}
	if row.LastError == "" {
		t.Fatal("expected last_error to be recorded")
	}

	// 对象没有被动过
	if got := fx.objects.paths("vehicleimages"); len(got) != 2 {
		t.Fatalf("objects must be untouched, got %v", got)
	}
}

func TestResumePendingRunsUnfinished(t *testing.T) {
	fx := newTransferFixture()
	fx.seedObjects()
	ctx := context.Background()

	tr := &models.Transfer{
		ID:           "pending-1",
		Kind:         models.TransferKindDelete,
		VehicleID:    "v1",
		Registration: "AB12CDE",
		FromUserID:   "alice",
	}
	fx.transfers.Create(ctx, tr)

	if err := fx.svc.ResumePending(ctx); err != nil {
		t.Fatalf("ResumePending: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		row, err := fx.transfers.GetByID(ctx, "pending-1")
		if err != nil {
			t.Fatalf("get transfer: %v", err)
		}
		if row.State == models.TransferStateCompleted {
			break
		}
		if row.State == models.TransferStateFailed {
			t.Fatalf("transfer failed: %s", row.LastError)
		}
		if time.Now().After(deadline) {
			t.Fatalf("transfer did not finish, state=%s step=%d", row.State, row.Step)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	fx := newTransferFixture()
	fx.svc.cfg.TransferWorkers = 2
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		fx.objects.put("vehicleimages", "alice/AB12CDE/"+string(rune('a'+i))+".jpeg")
	}

	tr := &models.Transfer{
		Kind:         models.TransferKindDelete,
		VehicleID:    "v1",
		Registration: "AB12CDE",
		FromUserID:   "alice",
	}
	fx.transfers.Create(ctx, tr)

	fx.svc.run(ctx, tr)

	if max := fx.objects.maxInFlight.Load(); max > 2 {
		t.Fatalf("expected at most 2 concurrent operations, saw %d", max)
	}
	if got := fx.objects.paths("vehicleimages"); len(got) != 0 {
		t.Fatalf("expected all objects removed, got %v", got)
	}
}
