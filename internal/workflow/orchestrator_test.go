package workflow

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"RewardPilot/internal/auth"
	xerrors "RewardPilot/internal/errors"
	"RewardPilot/internal/httpclient"
	"RewardPilot/internal/identity"
	"RewardPilot/internal/ledger"
	"RewardPilot/internal/observability/alerting"
	"RewardPilot/internal/platform"
	"RewardPilot/pkg/logger"
)

const challenge = "Please sign this message to connect your wallet."

// fakePlatform serves the rewards API. Task "t1" completes, "t2" is rejected.
type fakePlatform struct {
	t *testing.T

	mu           sync.Mutex
	profileCode  int
	loginToken   bool
	rejectLogin  bool
	tasksBody    string
	completeCode map[string]int
	calls        map[string]int
}

func newFakePlatform(t *testing.T) *fakePlatform {
	return &fakePlatform{
		t:           t,
		profileCode: http.StatusOK,
		loginToken:  true,
		tasksBody:   `{"statusCode":200,"data":[{"taskId":"t1","title":"Follow"},{"taskId":"t2","title":"Share"}]}`,
		completeCode: map[string]int{
			"t1": http.StatusOK,
			"t2": http.StatusOK,
		},
		calls: map[string]int{},
	}
}

func (f *fakePlatform) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.URL.Path]++
	loginToken := f.loginToken
	rejectLogin := f.rejectLogin
	f.mu.Unlock()

	if r.URL.Path == platform.PathLogin {
		var req platform.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"message":"bad body"}`, http.StatusBadRequest)
			return
		}
		if rejectLogin || !(identity.Ed25519Scheme{}).Verify(req.WalletAddress, []byte(req.Message), req.Signature) {
			http.Error(w, `{"message":"invalid signature"}`, http.StatusUnauthorized)
			return
		}
		if !loginToken {
			_, _ = io.WriteString(w, `{"statusCode":200,"data":{}}`)
			return
		}
		_, _ = io.WriteString(w, `{"statusCode":200,"data":{"accessToken":"tok-`+req.WalletAddress+`"}}`)
		return
	}

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-") {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	switch {
	case r.URL.Path == platform.PathProfile:
		w.WriteHeader(f.profileCode)
		_, _ = io.WriteString(w, `{"statusCode":200,"data":{}}`)
	case r.URL.Path == platform.PathDashboard, r.URL.Path == platform.PathStats, r.URL.Path == platform.PathDailyCheckIn:
		_, _ = io.WriteString(w, `{"statusCode":200,"data":{}}`)
	case r.URL.Path == platform.PathTasks:
		_, _ = io.WriteString(w, f.tasksBody)
	case strings.HasSuffix(r.URL.Path, "/complete"):
		taskID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/tasks/"), "/complete")
		switch code := f.completeCode[taskID]; code {
		case http.StatusOK:
			if taskID == "t2" {
				_, _ = io.WriteString(w, `{"statusCode":400,"message":"task requirements not met"}`)
				return
			}
			_, _ = io.WriteString(w, `{"statusCode":200,"message":"completed"}`)
		default:
			http.Error(w, `{"message":"boom"}`, code)
		}
	default:
		http.NotFound(w, r)
	}
}

type pacingRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *pacingRecorder) Sleep(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.delays = append(p.delays, d)
	p.mu.Unlock()
	return ctx.Err()
}

type capturingSource struct {
	gen *identity.Generator

	mu         sync.Mutex
	identities []*identity.Identity
}

func (c *capturingSource) Generate() (*identity.Identity, error) {
	id, err := c.gen.Generate()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.identities = append(c.identities, id)
	c.mu.Unlock()
	return id, nil
}

func (c *capturingSource) generated() []*identity.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*identity.Identity(nil), c.identities...)
}

type harness struct {
	orchestrator *Orchestrator
	ledger       *ledger.MemorySink
	source       *capturingSource
	pacing       *pacingRecorder
	platform     *fakePlatform
}

func newHarness(t *testing.T, fp *fakePlatform) *harness {
	t.Helper()
	srv := httptest.NewServer(fp)
	t.Cleanup(srv.Close)

	exec := httpclient.New(httpclient.Config{
		DefaultHeaders: httpclient.DefaultHeaders("https://app.example", "https://app.example/", "test"),
		Backoff:        httpclient.FixedBackoff{Attempts: 2},
	}, httpclient.WithLogger(logger.Discard()))
	api, err := platform.NewClient(srv.URL, "https://app.example/", exec)
	if err != nil {
		t.Fatalf("platform client: %v", err)
	}
	authn, err := auth.NewAuthenticator(api, auth.Config{Message: challenge, Referral: auth.StaticReferral("ref")}, auth.WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	gen, err := identity.NewGenerator("solana")
	if err != nil {
		t.Fatalf("generator: %v", err)
	}

	h := &harness{
		ledger:   &ledger.MemorySink{},
		source:   &capturingSource{gen: gen},
		pacing:   &pacingRecorder{},
		platform: fp,
	}
	h.orchestrator, err = NewOrchestrator(Dependencies{
		Identities: h.source,
		Ledger:     h.ledger,
		Auth:       authn,
		Platform:   api,
	},
		WithSleeper(h.pacing.Sleep),
		WithLogger(logger.Discard()),
		WithAuditLogger(logger.Discard()),
	)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	return h
}

func TestThreeIdentitiesTwoTasksEach(t *testing.T) {
	h := newHarness(t, newFakePlatform(t))
	runner := NewRunner(h.orchestrator, WithRunnerLogger(logger.Discard()))

	stats, err := runner.Run(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Processed != 3 || stats.Succeeded != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	for i, result := range stats.Results {
		if result.Index != i {
			t.Fatalf("results out of order: %+v", stats.Results)
		}
		if result.Completed != 1 || result.Total != 2 {
			t.Fatalf("identity %d: expected 1/2, got %d/%d", i, result.Completed, result.Total)
		}
		if result.Proxy != "direct" {
			t.Fatalf("expected direct route, got %q", result.Proxy)
		}
	}
	if stats.TasksCompleted != 3 || stats.TasksTotal != 6 {
		t.Fatalf("unexpected task totals %+v", stats)
	}

	records := h.ledger.Records()
	if len(records) != 3 {
		t.Fatalf("expected 3 ledger records, got %d", len(records))
	}
	generated := h.source.generated()
	for i, id := range generated {
		if records[i].PublicKey != id.PublicKey {
			t.Fatalf("ledger order mismatch at %d", i)
		}
		if _, err := id.Sign([]byte("x")); !stdErrors.Is(err, identity.ErrWiped) {
			t.Fatalf("identity %d secret should be wiped after processing", i)
		}
	}
	if len(h.pacing.delays) != 3 {
		t.Fatalf("expected one pacing delay per identity, got %d", len(h.pacing.delays))
	}
	for _, d := range h.pacing.delays {
		if d != DefaultTaskPacing {
			t.Fatalf("unexpected pacing %s", d)
		}
	}
}

func TestProfileFailureAbortsIdentity(t *testing.T) {
	fp := newFakePlatform(t)
	fp.profileCode = http.StatusServiceUnavailable
	h := newHarness(t, fp)

	result := h.orchestrator.Process(context.Background(), 0)
	if !stdErrors.Is(result.Err, xerrors.ErrNetwork) {
		t.Fatalf("expected network error, got %v", result.Err)
	}
	if result.Outcome() != "failed" || result.Completed != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(h.ledger.Records()) != 1 {
		t.Fatalf("ledger entry should be written before login")
	}
	if fp.count(platform.PathProfile) != 2 {
		t.Fatalf("expected profile to be attempted twice, got %d", fp.count(platform.PathProfile))
	}
	if fp.count(platform.PathDashboard) != 0 {
		t.Fatalf("pipeline must stop after a failed step")
	}
}

func TestProfileNonOKIsAPIError(t *testing.T) {
	fp := newFakePlatform(t)
	fp.profileCode = http.StatusAccepted
	h := newHarness(t, fp)

	result := h.orchestrator.Process(context.Background(), 0)
	if !stdErrors.Is(result.Err, xerrors.ErrAPI) {
		t.Fatalf("expected api error, got %v", result.Err)
	}
}

func TestMissingTokenIsAuthError(t *testing.T) {
	fp := newFakePlatform(t)
	fp.loginToken = false
	h := newHarness(t, fp)

	result := h.orchestrator.Process(context.Background(), 0)
	if !stdErrors.Is(result.Err, xerrors.ErrAuth) {
		t.Fatalf("expected auth error, got %v", result.Err)
	}
	if fp.count(platform.PathLogin) != 1 {
		t.Fatalf("auth errors must not be retried, got %d logins", fp.count(platform.PathLogin))
	}
	if fp.count(platform.PathProfile) != 0 {
		t.Fatalf("profile must not be called without a session")
	}
}

func TestRejectedLoginIsAuthError(t *testing.T) {
	fp := newFakePlatform(t)
	fp.rejectLogin = true
	h := newHarness(t, fp)

	result := h.orchestrator.Process(context.Background(), 0)
	if xerrors.CodeOf(result.Err) != xerrors.CodeAuth {
		t.Fatalf("expected AUTH_ERROR, got %v", result.Err)
	}
	if fp.count(platform.PathLogin) != 1 {
		t.Fatalf("rejected login must not be retried, got %d logins", fp.count(platform.PathLogin))
	}
}

func TestNumericTaskIDsAreCompleted(t *testing.T) {
	fp := newFakePlatform(t)
	fp.tasksBody = `{"statusCode":200,"data":[{"taskId":17,"title":"Follow"}]}`
	fp.completeCode["17"] = http.StatusOK
	h := newHarness(t, fp)

	result := h.orchestrator.Process(context.Background(), 0)
	if result.Err != nil || result.Completed != 1 || result.Total != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if fp.count("/tasks/17/complete") != 1 {
		t.Fatalf("numeric task id should be completed by its text form")
	}
}

func TestNullTaskListIsAPIError(t *testing.T) {
	fp := newFakePlatform(t)
	fp.tasksBody = `{"statusCode":200,"data":null}`
	h := newHarness(t, fp)

	result := h.orchestrator.Process(context.Background(), 0)
	if !stdErrors.Is(result.Err, xerrors.ErrAPI) {
		t.Fatalf("expected api error, got %v", result.Err)
	}
}

func TestEmptyTaskListSucceeds(t *testing.T) {
	fp := newFakePlatform(t)
	fp.tasksBody = `{"statusCode":200,"data":[]}`
	h := newHarness(t, fp)

	result := h.orchestrator.Process(context.Background(), 0)
	if result.Err != nil || result.Total != 0 || result.Completed != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(h.pacing.delays) != 0 {
		t.Fatalf("no pacing expected without tasks")
	}
}

func TestTaskCallErrorDoesNotStopLoop(t *testing.T) {
	fp := newFakePlatform(t)
	fp.tasksBody = `{"data":[{"taskId":"t3","title":"Broken"},{"taskId":"t1","title":"Follow"}]}`
	fp.completeCode["t3"] = http.StatusInternalServerError
	h := newHarness(t, fp)

	result := h.orchestrator.Process(context.Background(), 0)
	if result.Err != nil {
		t.Fatalf("task failures must not abort the identity: %v", result.Err)
	}
	if result.Completed != 1 || result.Total != 2 {
		t.Fatalf("expected 1/2, got %d/%d", result.Completed, result.Total)
	}
	if fp.count("/tasks/t1/complete") != 1 {
		t.Fatalf("loop should continue after a failed task")
	}
}

func TestProcessCanceledBeforeStart(t *testing.T) {
	h := newHarness(t, newFakePlatform(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := h.orchestrator.Process(ctx, 0)
	if !stdErrors.Is(result.Err, xerrors.ErrCanceled) || result.Outcome() != "canceled" {
		t.Fatalf("expected canceled result, got %+v", result)
	}
	if len(h.ledger.Records()) != 0 || len(h.source.generated()) != 0 {
		t.Fatalf("canceled run must not generate identities")
	}
}

func TestNewOrchestratorValidation(t *testing.T) {
	if _, err := NewOrchestrator(Dependencies{}); !stdErrors.Is(err, xerrors.New(xerrors.CodeInitializationFailure, "")) {
		t.Fatalf("expected initialization failure, got %v", err)
	}
}

type alertSink struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (a *alertSink) Notify(_ context.Context, event alerting.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func TestAbortedIdentityRaisesAlert(t *testing.T) {
	fp := newFakePlatform(t)
	fp.loginToken = false
	h := newHarness(t, fp)
	alerts := &alertSink{}
	WithAlerts(alerts)(h.orchestrator)

	result := h.orchestrator.Process(context.Background(), 7)
	if result.Err == nil {
		t.Fatalf("expected aborted identity")
	}
	if len(alerts.events) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts.events))
	}
	event := alerts.events[0]
	if event.Code != xerrors.CodeAuth || event.RunIndex != 7 || event.Wallet != result.PublicKey {
		t.Fatalf("unexpected alert %+v", event)
	}

	fp.mu.Lock()
	fp.loginToken = true
	fp.mu.Unlock()
	h.orchestrator.Process(context.Background(), 8)
	if len(alerts.events) != 1 {
		t.Fatalf("successful identities must not alert")
	}
}
