package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/dispatch"
	"github.com/Harsh-BH/execrelay/internal/domain"
	"github.com/Harsh-BH/execrelay/internal/health"
	"github.com/Harsh-BH/execrelay/internal/normalize"
	mockpub "github.com/Harsh-BH/execrelay/internal/publisher/mock"
	"github.com/Harsh-BH/execrelay/internal/ratelimit"
	"github.com/Harsh-BH/execrelay/internal/registry"
	mockrepo "github.com/Harsh-BH/execrelay/internal/repository/mock"
	"github.com/Harsh-BH/execrelay/internal/usecase"
	"github.com/Harsh-BH/execrelay/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubInvoker struct {
	payload string
	err     error
}

func (s *stubInvoker) Invoke(context.Context, *domain.ExecutionRequest) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.payload), nil
}

type testEnv struct {
	router  *gin.Engine
	invoker *stubInvoker
	repo    *mockrepo.RecordRepository
	pub     *mockpub.MockPublisher
	checks  map[string]DependencyCheck
}

func setupTestRouter(t *testing.T, userLimit int) *testEnv {
	t.Helper()

	reg, err := registry.New([]domain.Provider{
		{
			ID:        "piston",
			Priority:  1,
			Kind:      domain.KindRemoteAPI,
			Adapter:   domain.AdapterGeneric,
			BaseURL:   "http://piston",
			Timeout:   time.Second,
			Languages: map[string]domain.LanguageTarget{"python": {}, "javascript": {}},
		},
		{
			ID:        "browser",
			Priority:  10,
			Kind:      domain.KindClientSide,
			Languages: map[string]domain.LanguageTarget{"javascript": {}},
		},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	logger := zap.NewNop()
	inv := &stubInvoker{payload: `{"stdout":"hello\n","stderr":"","exit_code":0,"execution_time_ms":7}`}
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(),
		domain.RateLimit{Window: time.Minute, MaxCalls: userLimit}, logger)
	probe := health.NewProbe(health.NewMemoryStore(), health.DefaultPolicy(), logger)
	engine := dispatch.NewEngine(reg, map[string]dispatch.Invoker{"piston": inv}, probe, limiter, normalize.New(0), logger)

	pub := mockpub.NewMockPublisher()
	repo := mockrepo.NewRecordRepository()
	execUC := usecase.NewExecuteUsecase(validator.New(reg, 0, 0), limiter, engine, pub, logger)
	getUC := usecase.NewGetExecutionUsecase(repo, logger)

	env := &testEnv{invoker: inv, repo: repo, pub: pub, checks: map[string]DependencyCheck{}}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	env.router = NewRouter(ctx, &RouterDeps{
		Executor:     execUC,
		Records:      getUC,
		Providers:    reg,
		Languages:    reg,
		Health:       probe,
		Checks:       env.checks,
		Logger:       logger,
		RatePerMin:   1000,
		RateBurst:    1000,
		MaxBodyBytes: 256 * 1024,
	})
	return env
}

func (e *testEnv) do(method, path, requestor string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if requestor != "" {
		req.Header.Set("X-Requestor-ID", requestor)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) domain.ErrorResponse {
	t.Helper()
	var resp domain.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestExecuteHandler_Success(t *testing.T) {
	env := setupTestRouter(t, 30)

	w := env.do(http.MethodPost, "/api/v1/executions", "alice", domain.ExecuteRequest{
		Language: "python",
		Code:     "print('hello')",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp domain.ExecuteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != domain.StatusSuccess || resp.Output != "hello\n" || resp.Provider != "piston" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.ExecutionTimeMs != 7 {
		t.Errorf("expected executionTimeMs 7, got %d", resp.ExecutionTimeMs)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}

	recs := env.pub.Records()
	if len(recs) != 1 || recs[0].RequestID != w.Header().Get("X-Request-ID") {
		t.Errorf("expected one record carrying the request id, got %+v", recs)
	}
}

func TestExecuteHandler_MissingRequestor(t *testing.T) {
	env := setupTestRouter(t, 30)

	w := env.do(http.MethodPost, "/api/v1/executions", "", domain.ExecuteRequest{Language: "python", Code: "1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	if code := decodeError(t, w).Code; code != domain.KindMalformedRequest {
		t.Errorf("expected MalformedRequest, got %s", code)
	}
}

func TestExecuteHandler_CodeTooLarge(t *testing.T) {
	env := setupTestRouter(t, 30)

	w := env.do(http.MethodPost, "/api/v1/executions", "alice", domain.ExecuteRequest{
		Language: "python",
		Code:     strings.Repeat("x", 50_001),
	})
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d: %s", w.Code, w.Body.String())
	}
	if code := decodeError(t, w).Code; code != domain.KindCodeTooLarge {
		t.Errorf("expected CodeTooLarge, got %s", code)
	}
	if len(env.pub.Records()) != 0 {
		t.Error("rejected request must not be recorded")
	}
}

func TestExecuteHandler_UnsupportedLanguage(t *testing.T) {
	env := setupTestRouter(t, 30)

	w := env.do(http.MethodPost, "/api/v1/executions", "alice", domain.ExecuteRequest{Language: "ruby", Code: "puts 1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	if code := decodeError(t, w).Code; code != domain.KindUnsupportedLanguage {
		t.Errorf("expected UnsupportedLanguage, got %s", code)
	}
}

func TestExecuteHandler_InvalidBody(t *testing.T) {
	env := setupTestRouter(t, 30)

	w := env.do(http.MethodPost, "/api/v1/executions", "alice", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}

	w = env.do(http.MethodPost, "/api/v1/executions", "alice", "{}")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for empty request, got %d", w.Code)
	}
}

func TestExecuteHandler_UserRateLimited(t *testing.T) {
	env := setupTestRouter(t, 2)
	body := domain.ExecuteRequest{Language: "python", Code: "print(1)"}

	for i := 0; i < 2; i++ {
		if w := env.do(http.MethodPost, "/api/v1/executions", "alice", body); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	w := env.do(http.MethodPost, "/api/v1/executions", "alice", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", w.Code)
	}
	if code := decodeError(t, w).Code; code != domain.KindUserRateLimited {
		t.Errorf("expected UserRateLimited, got %s", code)
	}

	// Budgets are per requestor.
	if w := env.do(http.MethodPost, "/api/v1/executions", "bob", body); w.Code != http.StatusOK {
		t.Errorf("expected bob to pass, got %d", w.Code)
	}
}

func TestExecuteHandler_AllProvidersExhausted(t *testing.T) {
	env := setupTestRouter(t, 30)
	env.invoker.err = domain.ProviderError(domain.KindProviderUnavailable, "piston", errors.New("dial tcp 10.0.0.7:2000: connection refused"))

	w := env.do(http.MethodPost, "/api/v1/executions", "alice", domain.ExecuteRequest{Language: "python", Code: "print(1)"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
	resp := decodeError(t, w)
	if resp.Code != domain.KindAllProvidersExhausted {
		t.Errorf("expected AllProvidersExhausted, got %s", resp.Code)
	}
	if strings.Contains(resp.Message, "10.0.0.7") {
		t.Errorf("provider details leaked: %q", resp.Message)
	}
}

func TestExecuteHandler_ClientSideDirective(t *testing.T) {
	env := setupTestRouter(t, 30)
	env.invoker.err = domain.ProviderError(domain.KindProviderUnavailable, "piston", errors.New("502"))

	w := env.do(http.MethodPost, "/api/v1/executions", "alice", domain.ExecuteRequest{Language: "javascript", Code: "1+1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp domain.ExecuteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if resp.Status != domain.StatusClientSideDirective || resp.Provider != "browser" || resp.Language != "javascript" {
		t.Errorf("unexpected directive: %+v", resp)
	}
}

func TestGetByIDHandler(t *testing.T) {
	env := setupTestRouter(t, 30)
	rec := &domain.ExecutionRecord{
		RecordID:    uuid.New(),
		RequestID:   "req-1",
		RequestorID: "alice",
		Language:    "python",
		Status:      domain.StatusSuccess,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := env.repo.Insert(context.Background(), rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	w := env.do(http.MethodGet, "/api/v1/executions/"+rec.RecordID.String(), "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var got domain.ExecutionRecord
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to unmarshal record: %v", err)
	}
	if got.RecordID != rec.RecordID {
		t.Errorf("expected record %s, got %s", rec.RecordID, got.RecordID)
	}

	w = env.do(http.MethodGet, "/api/v1/executions/"+rec.RecordID.String(), "mallory", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another requestor, got %d", w.Code)
	}
	if code := decodeError(t, w).Code; code != domain.KindRecordNotFound {
		t.Errorf("expected RecordNotFound, got %s", code)
	}

	w = env.do(http.MethodGet, "/api/v1/executions/not-a-uuid", "alice", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid id, got %d", w.Code)
	}
}

func TestListHandler(t *testing.T) {
	env := setupTestRouter(t, 30)
	for i := 0; i < 3; i++ {
		_, _ = env.repo.Insert(context.Background(), &domain.ExecutionRecord{
			RecordID:    uuid.New(),
			RequestorID: "alice",
			Status:      domain.StatusSuccess,
			CreatedAt:   time.Now().Add(time.Duration(i) * time.Second),
		})
	}

	w := env.do(http.MethodGet, "/api/v1/executions?limit=2", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp map[string][]domain.ExecutionRecord
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if len(resp["executions"]) != 2 {
		t.Errorf("expected 2 executions, got %d", len(resp["executions"]))
	}

	w = env.do(http.MethodGet, "/api/v1/executions?limit=abc", "alice", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", w.Code)
	}

	w = env.do(http.MethodGet, "/api/v1/executions", "bob", nil)
	if !strings.Contains(w.Body.String(), `"executions":[]`) {
		t.Errorf("expected empty list for bob, got %s", w.Body.String())
	}
}

func TestProviderHandler(t *testing.T) {
	env := setupTestRouter(t, 30)

	w := env.do(http.MethodGet, "/api/v1/providers", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp map[string][]domain.ProviderInfo
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	providers := resp["providers"]
	if len(providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(providers))
	}
	if providers[0].ID != "piston" || providers[1].ID != "browser" {
		t.Errorf("expected dispatch order piston, browser; got %s, %s", providers[0].ID, providers[1].ID)
	}
	if !providers[0].Health.IsHealthy {
		t.Error("expected piston healthy")
	}
	if strings.Contains(w.Body.String(), "http://piston") {
		t.Error("base URL must not be exposed")
	}
}

func TestLanguageHandler(t *testing.T) {
	env := setupTestRouter(t, 30)

	w := env.do(http.MethodGet, "/api/v1/languages", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp map[string][]domain.LanguageInfo
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	languages := resp["languages"]
	if len(languages) != 2 {
		t.Fatalf("expected 2 languages, got %d", len(languages))
	}
	for _, l := range languages {
		if l.Name == "javascript" && !l.ClientSide {
			t.Error("expected javascript to report a client-side fallback")
		}
	}
}

func TestHealthHandler(t *testing.T) {
	env := setupTestRouter(t, 30)
	env.checks["redis"] = func(context.Context) error { return nil }

	if w := env.do(http.MethodGet, "/api/v1/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	env.checks["postgres"] = func(context.Context) error { return errors.New("connection refused") }
	w := env.do(http.MethodGet, "/api/v1/health", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"postgres":"unavailable"`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestWebSocketStream(t *testing.T) {
	env := setupTestRouter(t, 30)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	header := http.Header{}
	header.Set("X-Requestor-ID", "alice")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/executions/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	frames := []string{
		`{"id":"1","language":"python","code":"print('hello')"}`,
		`{"id":"2","language":"cobol","code":"DISPLAY 'HI'"}`,
		`not json`,
	}
	var got []streamResponse
	for _, f := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("write: %v", err)
		}
		var resp streamResponse
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, resp)
	}

	if got[0].ID != "1" || got[0].Result == nil || got[0].Result.Output != "hello\n" {
		t.Errorf("unexpected first frame: %+v", got[0])
	}
	if got[1].ID != "2" || got[1].Error == nil || got[1].Error.Code != domain.KindUnsupportedLanguage {
		t.Errorf("unexpected second frame: %+v", got[1])
	}
	if got[2].Error == nil || got[2].Error.Code != domain.KindMalformedRequest {
		t.Errorf("unexpected third frame: %+v", got[2])
	}
}

func TestWebSocketStream_OversizedFrame(t *testing.T) {
	env := setupTestRouter(t, 30)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	header := http.Header{}
	header.Set("X-Requestor-ID", "alice")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/executions/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	code := strings.Repeat("x", 300*1024)
	frame := `{"id":"big","language":"python","code":"` + code + `"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp streamResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("expected an error reply before close, got %v", err)
	}
	if resp.Error == nil || resp.Error.Code != domain.KindCodeTooLarge {
		t.Fatalf("unexpected reply: %+v", resp)
	}

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseMessageTooBig) {
		t.Fatalf("expected close 1009, got %v", err)
	}
	if n := len(env.pub.Records()); n != 0 {
		t.Errorf("oversized frame must not reach execution, got %d records", n)
	}
}

func TestErrorBody(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   domain.ErrorKind
	}{
		{domain.NewExecError(domain.KindCodeTooLarge, "too big"), http.StatusRequestEntityTooLarge, domain.KindCodeTooLarge},
		{domain.NewExecError(domain.KindMalformedRequest, "bad"), http.StatusBadRequest, domain.KindMalformedRequest},
		{domain.NewExecError(domain.KindUserRateLimited, "slow down"), http.StatusTooManyRequests, domain.KindUserRateLimited},
		{domain.NewExecError(domain.KindAllProvidersExhausted, "none"), http.StatusServiceUnavailable, domain.KindAllProvidersExhausted},
		{domain.ErrRecordNotFound, http.StatusNotFound, domain.KindRecordNotFound},
		{errors.New("boom"), http.StatusInternalServerError, domain.KindInternal},
	}
	for _, tt := range tests {
		status, body := errorBody(tt.err)
		if status != tt.status || body.Code != tt.code {
			t.Errorf("errorBody(%v) = %d/%s, want %d/%s", tt.err, status, body.Code, tt.status, tt.code)
		}
	}
}
