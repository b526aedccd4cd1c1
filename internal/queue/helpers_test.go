package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/common"
	"github.com/ternarybob/panelops/internal/interfaces"
	"github.com/ternarybob/panelops/internal/models"
	badgerstore "github.com/ternarybob/panelops/internal/storage/badger"
)

// memJobStore is a concurrency-safe in-memory JobStorage
type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]models.Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]models.Job)}
}

func (s *memJobStore) SaveJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memJobStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, badgerstore.ErrJobNotFound
	}
	copied := job
	return &copied, nil
}

func (s *memJobStore) ListJobs(ctx context.Context, tenantID, targetID string, status models.JobStatus) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, job := range s.jobs {
		if job.TenantID != tenantID || job.TargetID != targetID {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		copied := job
		out = append(out, &copied)
	}
	return out, nil
}

func (s *memJobStore) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}

func (s *memJobStore) CountJobsByStatus(ctx context.Context, tenantID string, status models.JobStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, job := range s.jobs {
		if job.TenantID == tenantID && job.Status == status {
			count++
		}
	}
	return count, nil
}

// memCredStore returns a fixed credential for every ref
type memCredStore struct {
	cred *models.Credential
}

func (s *memCredStore) SaveCredential(ctx context.Context, cred *models.Credential) error {
	s.cred = cred
	return nil
}

func (s *memCredStore) GetCredential(ctx context.Context, ref string) (*models.Credential, error) {
	return s.cred, nil
}

type memTargetStore struct {
	target *models.Target
}

func (s *memTargetStore) SaveTarget(ctx context.Context, target *models.Target) error {
	s.target = target
	return nil
}

func (s *memTargetStore) GetTarget(ctx context.Context, targetID string) (*models.Target, error) {
	return s.target, nil
}

func (s *memTargetStore) ListTargets(ctx context.Context, tenantID string) ([]*models.Target, error) {
	if s.target == nil {
		return nil, nil
	}
	return []*models.Target{s.target}, nil
}

type memAuditStore struct {
	mu      sync.Mutex
	records []*models.AuditRecord
}

func (s *memAuditStore) SaveAudit(ctx context.Context, record *models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *memAuditStore) ListAudits(ctx context.Context, tenantID, targetID string, limit int) ([]*models.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.AuditRecord(nil), s.records...), nil
}

func (s *memAuditStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// nullEvents swallows all events
type nullEvents struct{}

func (nullEvents) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	return nil
}
func (nullEvents) Publish(ctx context.Context, event interfaces.Event) error     { return nil }
func (nullEvents) PublishSync(ctx context.Context, event interfaces.Event) error { return nil }
func (nullEvents) Close() error                                                  { return nil }

// fakeBrowsers hands out inert contexts and counts calls
type fakeBrowsers struct {
	mu       sync.Mutex
	acquires int
	resets   int
	evicts   int
}

func (b *fakeBrowsers) Acquire(ctx context.Context, tenantID, targetID string) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acquires++
	return context.Background(), nil
}

func (b *fakeBrowsers) Reset(tenantID, targetID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resets++
}

func (b *fakeBrowsers) Evict(tenantID, targetID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evicts++
}

func (b *fakeBrowsers) EvictIdle() {}
func (b *fakeBrowsers) Shutdown()  {}

func (b *fakeBrowsers) acquireCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acquires
}

func (b *fakeBrowsers) resetCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resets
}

// fakeLogin records login calls and returns a scripted error
type fakeLogin struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *fakeLogin) Login(ctx context.Context, page context.Context, cred *models.Credential, target *models.Target) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.err
}

func (l *fakeLogin) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// scriptedExecutor runs a caller-supplied function per invocation
type scriptedExecutor struct {
	name string
	fn   func(ctx context.Context, page context.Context, job *models.Job) (*models.ActionResult, error)
}

func (e *scriptedExecutor) ActionName() string { return e.name }

func (e *scriptedExecutor) Execute(ctx context.Context, page context.Context, job *models.Job) (*models.ActionResult, error) {
	return e.fn(ctx, page, job)
}

// registryOf builds a registry resolving every target to the given executor
type singleRegistry struct {
	exec interfaces.ActionExecutor
}

func (r *singleRegistry) Register(executor interfaces.ActionExecutor)                          {}
func (r *singleRegistry) RegisterForTarget(targetID string, executor interfaces.ActionExecutor) {}

func (r *singleRegistry) Resolve(targetID, actionName string) (interfaces.ActionExecutor, error) {
	return r.exec, nil
}

// testHarness bundles the service with its fakes
type testHarness struct {
	service  *Service
	jobs     *memJobStore
	creds    *memCredStore
	targets  *memTargetStore
	audits   *memAuditStore
	browsers *fakeBrowsers
	login    *fakeLogin
}

func newHarness(t *testing.T, exec interfaces.ActionExecutor, jobTimeout string) *testHarness {
	t.Helper()
	return newHarnessWithEvents(t, exec, jobTimeout, nullEvents{})
}

func newHarnessWithEvents(t *testing.T, exec interfaces.ActionExecutor, jobTimeout string, events interfaces.EventService) *testHarness {
	t.Helper()

	config := &common.QueueConfig{
		TenantConcurrency:  3,
		JobTimeout:         jobTimeout,
		ScreenshotInterval: "500ms",
	}

	h := &testHarness{
		jobs: newMemJobStore(),
		creds: &memCredStore{cred: &models.Credential{
			Ref: "cred-1", UserID: "user-1", Username: "operator", Password: "secret",
		}},
		targets: &memTargetStore{target: &models.Target{
			ID: "target-1", TenantID: "tenant-1",
			LoginURL:     "https://console.example.com/login",
			DashboardURL: "https://console.example.com/dashboard",
		}},
		audits:   &memAuditStore{},
		browsers: &fakeBrowsers{},
		login:    &fakeLogin{},
	}

	h.service = NewService(
		config, h.jobs, h.creds, h.targets, h.audits,
		events, h.browsers, nil, &singleRegistry{exec: exec}, h.login,
		arbor.NewLogger(),
	)
	t.Cleanup(func() { h.service.Stop() })

	return h
}

func newJob(tenantID, targetID string) *models.Job {
	return &models.Job{
		TenantID:      tenantID,
		TargetID:      targetID,
		ActionName:    "balance_query",
		RequesterID:   "requester-1",
		CredentialRef: "cred-1",
	}
}

// waitTerminal polls storage until the job reaches a terminal state
func waitTerminal(t *testing.T, h *testHarness, jobID string) *models.Job {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := h.jobs.GetJob(context.Background(), jobID)
		if err == nil && job.Status.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return nil
}
