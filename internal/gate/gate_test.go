package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/tasktracker/internal/auth"
	"github.com/hitoshi/tasktracker/internal/idempotency"
	"github.com/hitoshi/tasktracker/internal/model"
	"github.com/hitoshi/tasktracker/internal/ratelimit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubUsers struct {
	users map[int64]*model.User
	err   error
}

func (s *stubUsers) FindByID(_ context.Context, id int64) (*model.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.users[id], nil
}

type recordedDecision struct{ stage, outcome string }

type spyMetrics struct {
	mu        sync.Mutex
	decisions []recordedDecision
}

func (s *spyMetrics) RecordGateDecision(stage, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, recordedDecision{stage, outcome})
}
func (s *spyMetrics) RecordHTTPStatus(int)                {}
func (s *spyMetrics) RecordRequestDuration(time.Duration) {}
func (s *spyMetrics) RecordSwept(string, int)             {}

func (s *spyMetrics) last() recordedDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.decisions) == 0 {
		return recordedDecision{}
	}
	return s.decisions[len(s.decisions)-1]
}

type fixture struct {
	gate    *Gate
	tokens  *auth.TokenService
	users   *stubUsers
	clock   *fakeClock
	metrics *spyMetrics
}

func newFixture(t *testing.T, limit int) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: "gate-secret"}, auth.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenService error: %v", err)
	}
	users := &stubUsers{users: map[int64]*model.User{
		1: {ID: 1, Email: "a@example.com", Role: model.RoleUser},
		2: {ID: 2, Email: "b@example.com"},
	}}
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{Limit: limit, Window: time.Minute}, ratelimit.WithClock(clock.Now))
	cache := idempotency.New(idempotency.NewMemoryStore(0), 0, idempotency.WithClock(clock.Now))
	spy := &spyMetrics{}

	return &fixture{
		gate:    New(tokens, users, limiter, cache, WithMetrics(spy)),
		tokens:  tokens,
		users:   users,
		clock:   clock,
		metrics: spy,
	}
}

func TestGate_Authenticate(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	access, _, _ := f.tokens.Issue(1, auth.ClassAccess)
	identity, err := f.gate.Authenticate(ctx, access)
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if identity.ID != 1 || identity.Role != model.RoleUser {
		t.Errorf("identity = %+v", identity)
	}

	// ロール未設定のユーザーはuserロールとして扱う
	access2, _, _ := f.tokens.Issue(2, auth.ClassAccess)
	identity2, err := f.gate.Authenticate(ctx, access2)
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if identity2.Role != model.RoleUser {
		t.Errorf("role = %q, want %q", identity2.Role, model.RoleUser)
	}
	if got := f.metrics.last(); got.stage != "authenticate" || got.outcome != "allowed" {
		t.Errorf("last decision = %+v", got)
	}
}

func TestGate_Authenticate_Denied(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	refresh, _, _ := f.tokens.Issue(1, auth.ClassRefresh)
	expired, _, _ := f.tokens.Issue(1, auth.ClassAccess)
	unknownUser, _, _ := f.tokens.Issue(99, auth.ClassAccess)

	tests := []struct {
		name    string
		token   string
		advance time.Duration
	}{
		{"empty", "", 0},
		{"garbage", "abc.def.ghi", 0},
		{"refresh token", refresh, 0},
		{"unknown user", unknownUser, 0},
		{"expired", expired, auth.DefaultAccessTTL + time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.clock.Advance(tt.advance)
			_, err := f.gate.Authenticate(ctx, tt.token)
			if !model.HasCode(err, model.ErrCodeInvalidCredential) {
				t.Errorf("expected INVALID_CREDENTIAL, got %v", err)
			}
			if got := f.metrics.last(); got.outcome != "denied" {
				t.Errorf("last decision = %+v", got)
			}
		})
	}
}

func TestGate_Authenticate_StoreError(t *testing.T) {
	f := newFixture(t, 10)
	f.users.err = errors.New("db down")

	access, _, _ := f.tokens.Issue(1, auth.ClassAccess)
	_, err := f.gate.Authenticate(context.Background(), access)
	if err == nil || model.HasCode(err, model.ErrCodeInvalidCredential) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
	if !errors.Is(err, f.users.err) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

func TestGate_Admit(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	alice := model.Identity{ID: 1}
	bob := model.Identity{ID: 2}

	for i := 0; i < 2; i++ {
		if _, err := f.gate.Admit(ctx, alice); err != nil {
			t.Fatalf("call %d denied: %v", i+1, err)
		}
	}

	d, err := f.gate.Admit(ctx, alice)
	if !model.HasCode(err, model.ErrCodeAdmissionExceeded) {
		t.Fatalf("expected RATE_LIMIT_EXCEEDED, got %v", err)
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.RetryAfter != d.RetryAfter || d.RetryAfter < 1 || d.RetryAfter > 60 {
		t.Errorf("RetryAfter = %d (decision %+v)", apiErr.RetryAfter, d)
	}
	if d.Limit != 2 || d.Remaining != 0 {
		t.Errorf("decision = %+v", d)
	}

	// 他ユーザーの予算には影響しない
	if _, err := f.gate.Admit(ctx, bob); err != nil {
		t.Errorf("bob denied: %v", err)
	}
	if f.gate.Limit() != 2 {
		t.Errorf("Limit = %d, want 2", f.gate.Limit())
	}
}

func TestGate_ReplayAndRemember(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	alice := model.Identity{ID: 1}
	bob := model.Identity{ID: 2}

	if _, ok, err := f.gate.Replay(ctx, alice, "k1"); ok || err != nil {
		t.Fatalf("Replay before Remember = %v, %v", ok, err)
	}

	resp := CachedResponse{Status: 201, ContentType: "application/json", Body: []byte(`{"id":1}`)}
	if err := f.gate.Remember(ctx, alice, "k1", resp); err != nil {
		t.Fatalf("Remember error: %v", err)
	}

	got, ok, err := f.gate.Replay(ctx, alice, "k1")
	if err != nil || !ok {
		t.Fatalf("Replay = %v, %v", ok, err)
	}
	if got.Status != 201 || got.ContentType != "application/json" || string(got.Body) != `{"id":1}` {
		t.Errorf("replayed = %+v", got)
	}
	if last := f.metrics.last(); last.stage != "replay" || last.outcome != "hit" {
		t.Errorf("last decision = %+v", last)
	}

	// 冪等キーはユーザーごとに独立
	if _, ok, _ := f.gate.Replay(ctx, bob, "k1"); ok {
		t.Error("bob replayed alice's response")
	}

	// 空キーは保存も再生もしない
	if err := f.gate.Remember(ctx, alice, "", resp); err != nil {
		t.Errorf("Remember(empty) error: %v", err)
	}
	if _, ok, _ := f.gate.Replay(ctx, alice, ""); ok {
		t.Error("Replay(empty) found a record")
	}

	// 保持期間を過ぎると再生されない
	f.clock.Advance(idempotency.DefaultTTL + time.Second)
	if _, ok, _ := f.gate.Replay(ctx, alice, "k1"); ok {
		t.Error("expired response was replayed")
	}
}
