package usecase

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/dispatch"
	"github.com/Harsh-BH/execrelay/internal/domain"
	"github.com/Harsh-BH/execrelay/internal/health"
	"github.com/Harsh-BH/execrelay/internal/normalize"
	mockpub "github.com/Harsh-BH/execrelay/internal/publisher/mock"
	"github.com/Harsh-BH/execrelay/internal/ratelimit"
	"github.com/Harsh-BH/execrelay/internal/registry"
	mockrepo "github.com/Harsh-BH/execrelay/internal/repository/mock"
	"github.com/Harsh-BH/execrelay/internal/validator"
)

type countingInvoker struct {
	calls   atomic.Int32
	payload string
	err     error
}

func (c *countingInvoker) Invoke(context.Context, *domain.ExecutionRequest) ([]byte, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []byte(c.payload), nil
}

type harness struct {
	uc      *ExecuteUsecase
	invoker *countingInvoker
	pub     *mockpub.MockPublisher
}

func newHarness(t *testing.T, extra ...domain.Provider) harness {
	t.Helper()

	providers := append([]domain.Provider{{
		ID:        "piston",
		Priority:  1,
		Kind:      domain.KindRemoteAPI,
		Adapter:   domain.AdapterGeneric,
		BaseURL:   "http://piston",
		Timeout:   time.Second,
		Languages: map[string]domain.LanguageTarget{"python": {}, "javascript": {}},
	}}, extra...)
	reg, err := registry.New(providers)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	logger := zap.NewNop()
	inv := &countingInvoker{payload: `{"stdout":"hello\n","exit_code":0,"execution_time_ms":12}`}
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), domain.RateLimit{Window: time.Minute, MaxCalls: 30}, logger)
	probe := health.NewProbe(health.NewMemoryStore(), health.DefaultPolicy(), logger)
	engine := dispatch.NewEngine(reg, map[string]dispatch.Invoker{"piston": inv}, probe, limiter, normalize.New(0), logger)
	pub := mockpub.NewMockPublisher()

	return harness{
		uc:      NewExecuteUsecase(validator.New(reg, 0, 0), limiter, engine, pub, logger),
		invoker: inv,
		pub:     pub,
	}
}

func newRequest() *domain.ExecutionRequest {
	return &domain.ExecutionRequest{
		RequestorID: "alice",
		Language:    "python",
		SourceCode:  "print('hello')",
	}
}

func TestExecute_Success(t *testing.T) {
	h := newHarness(t)

	res, err := h.uc.Execute(context.Background(), newRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != domain.StatusSuccess {
		t.Errorf("expected success, got %s", res.Status)
	}
	if res.Provider() != "piston" {
		t.Errorf("expected provider piston, got %q", res.Provider())
	}
	if res.Stdout != "hello\n" {
		t.Errorf("unexpected stdout %q", res.Stdout)
	}

	// Verify a record was published
	recs := h.pub.Records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 published record, got %d", len(recs))
	}
	if recs[0].Status != domain.StatusSuccess || recs[0].StdoutBytes != 6 {
		t.Errorf("unexpected record: %+v", recs[0])
	}
	if recs[0].RequestID == "" {
		t.Error("expected generated request id")
	}
}

func TestExecute_31stRequestIsRateLimitedWithoutProviderCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		if _, err := h.uc.Execute(ctx, newRequest()); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
	}
	before := h.invoker.calls.Load()

	res, err := h.uc.Execute(ctx, newRequest())
	if !errors.Is(err, domain.ErrUserRateLimited) {
		t.Fatalf("expected ErrUserRateLimited, got %v", err)
	}
	if res.Status != domain.StatusRateLimited {
		t.Errorf("expected rateLimited, got %s", res.Status)
	}
	if got := h.invoker.calls.Load(); got != before {
		t.Errorf("expected no provider invocation, got %d new calls", got-before)
	}
}

func TestExecute_CodeTooLargeNeverReachesProvider(t *testing.T) {
	h := newHarness(t)
	req := newRequest()
	req.SourceCode = strings.Repeat("x", 50_001)

	res, err := h.uc.Execute(context.Background(), req)
	if !errors.Is(err, domain.ErrCodeTooLarge) {
		t.Fatalf("expected ErrCodeTooLarge, got %v", err)
	}
	if res.Status != domain.StatusRejected {
		t.Errorf("expected rejected, got %s", res.Status)
	}
	if h.invoker.calls.Load() != 0 {
		t.Errorf("expected 0 provider calls, got %d", h.invoker.calls.Load())
	}
	if len(h.pub.Records()) != 0 {
		t.Errorf("rejected requests are not recorded")
	}
}

func TestExecute_UnsupportedLanguage(t *testing.T) {
	h := newHarness(t)
	req := newRequest()
	req.Language = "cobol"

	_, err := h.uc.Execute(context.Background(), req)
	if !errors.Is(err, domain.ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestExecute_RejectedRequestsDoNotConsumeBudget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bad := newRequest()
	bad.SourceCode = ""
	for i := 0; i < 40; i++ {
		if _, err := h.uc.Execute(ctx, bad); !errors.Is(err, domain.ErrMalformedRequest) {
			t.Fatalf("expected ErrMalformedRequest, got %v", err)
		}
	}

	if _, err := h.uc.Execute(ctx, newRequest()); err != nil {
		t.Fatalf("expected valid request to pass, got %v", err)
	}
}

func TestExecute_AllProvidersExhausted(t *testing.T) {
	h := newHarness(t)
	h.invoker.err = domain.ProviderError(domain.KindProviderUnavailable, "piston", errors.New("502"))

	res, err := h.uc.Execute(context.Background(), newRequest())
	if !errors.Is(err, domain.ErrAllProvidersExhausted) {
		t.Fatalf("expected ErrAllProvidersExhausted, got %v", err)
	}
	if res.Status != domain.StatusAllProvidersExhausted {
		t.Errorf("expected allProvidersExhausted, got %s", res.Status)
	}
	if len(h.pub.Records()) != 1 {
		t.Errorf("expected exhausted outcome to be recorded")
	}
}

func TestExecute_ClientSideDirective(t *testing.T) {
	h := newHarness(t, domain.Provider{
		ID:        "browser",
		Priority:  99,
		Kind:      domain.KindClientSide,
		Languages: map[string]domain.LanguageTarget{"javascript": {}},
	})
	h.invoker.err = domain.ProviderError(domain.KindProviderUnavailable, "piston", errors.New("502"))

	req := newRequest()
	req.Language = "javascript"
	res, err := h.uc.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != domain.StatusClientSideDirective || res.Provider() != "browser" {
		t.Errorf("expected client-side directive from browser, got %s/%s", res.Status, res.Provider())
	}
}

func TestExecute_PublishFailureIsNotSurfaced(t *testing.T) {
	h := newHarness(t)
	h.pub.PublishFn = func(ctx context.Context, rec *domain.ExecutionRecord) error {
		return errors.New("channel not available")
	}

	res, err := h.uc.Execute(context.Background(), newRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != domain.StatusSuccess {
		t.Errorf("expected success, got %s", res.Status)
	}
}

func TestExecute_NilRequest(t *testing.T) {
	h := newHarness(t)
	res, err := h.uc.Execute(context.Background(), nil)
	if !errors.Is(err, domain.ErrMalformedRequest) {
		t.Errorf("expected ErrMalformedRequest, got %v", err)
	}
	if res == nil || res.Status != domain.StatusRejected {
		t.Errorf("expected rejected result, got %+v", res)
	}
}

func TestGetExecution(t *testing.T) {
	repo := mockrepo.NewRecordRepository()
	uc := NewGetExecutionUsecase(repo, zap.NewNop())
	ctx := context.Background()

	rec := &domain.ExecutionRecord{
		RecordID:    uuid.New(),
		RequestorID: "alice",
		Status:      domain.StatusSuccess,
		CreatedAt:   time.Now(),
	}
	if _, err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := uc.Execute(ctx, "alice", rec.RecordID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RecordID != rec.RecordID {
		t.Errorf("record id mismatch")
	}

	if _, err := uc.Execute(ctx, "mallory", rec.RecordID); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound for another requestor, got %v", err)
	}
	if _, err := uc.Execute(ctx, "alice", uuid.New()); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}

	repo.GetByIDFn = func(ctx context.Context, id uuid.UUID) (*domain.ExecutionRecord, error) {
		return nil, errors.New("connection reset")
	}
	if _, err := uc.Execute(ctx, "alice", rec.RecordID); err == nil || errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("expected storage error to pass through, got %v", err)
	}
}

func TestListExecutions(t *testing.T) {
	repo := mockrepo.NewRecordRepository()
	uc := NewGetExecutionUsecase(repo, zap.NewNop())
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, _ = repo.Insert(ctx, &domain.ExecutionRecord{
			RecordID:    uuid.New(),
			RequestorID: "alice",
			Status:      domain.StatusSuccess,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
	}
	_, _ = repo.Insert(ctx, &domain.ExecutionRecord{RecordID: uuid.New(), RequestorID: "bob", CreatedAt: base})

	recs, err := uc.List(ctx, "alice", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if !recs[0].CreatedAt.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("expected newest first, got %s", recs[0].CreatedAt)
	}
}
