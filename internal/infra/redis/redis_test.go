package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/infra/logging"
)

// memClient is an in-memory RedisClient; TTLs are recorded, not enforced.
type memClient struct {
	mu      sync.Mutex
	data    map[string]string
	ttl     map[string]time.Duration
	failGet error
}

func newMemClient() *memClient {
	return &memClient{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memClient) Ping(context.Context) error { return nil }
func (m *memClient) Close() error               { return nil }

func (m *memClient) Set(_ context.Context, key string, value interface{}, exp time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	m.ttl[key] = exp
	return nil
}

func (m *memClient) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return "", m.failGet
	}
	v, ok := m.data[key]
	if !ok {
		return "", ErrNil
	}
	return v, nil
}

func (m *memClient) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.data[key] {
		n = n*10 + int64(c-'0')
	}
	n++
	m.data[key] = itoa(n)
	return n, nil
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func (m *memClient) Expire(_ context.Context, key string, exp time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl[key] = exp
	return nil
}

func (m *memClient) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type countingPolicyRepo struct {
	calls  int
	policy *model.GuardrailPolicy
}

func (r *countingPolicyRepo) GetPolicy(_ context.Context, tenantID string) (*model.GuardrailPolicy, error) {
	r.calls++
	p := *r.policy
	p.TenantID = tenantID
	return &p, nil
}

func TestCachedPolicyRepo(t *testing.T) {
	ctx := context.Background()
	inner := &countingPolicyRepo{policy: &model.GuardrailPolicy{
		EnabledCategories: []string{"legal-advice"},
		BlockedKeywords:   []string{"project falcon"},
		TriggerMode:       model.TriggerModeFlag,
	}}
	client := newMemClient()
	repo := NewCachedPolicyRepo(inner, client, time.Minute, logging.Nop())

	t.Run("second read is served from cache", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			p, err := repo.GetPolicy(ctx, "T1")
			if err != nil {
				t.Fatal(err)
			}
			if p.TriggerMode != model.TriggerModeFlag || p.BlockedKeywords[0] != "project falcon" || p.TenantID != "T1" {
				t.Fatalf("unexpected policy %+v", p)
			}
		}
		if inner.calls != 1 {
			t.Errorf("expected 1 store read, got %d", inner.calls)
		}
		if client.ttl[policyKey("T1")] != time.Minute {
			t.Errorf("expected ttl to be set, got %s", client.ttl[policyKey("T1")])
		}
	})

	t.Run("invalidate forces a reload", func(t *testing.T) {
		if err := repo.Invalidate(ctx, "T1"); err != nil {
			t.Fatal(err)
		}
		if _, err := repo.GetPolicy(ctx, "T1"); err != nil {
			t.Fatal(err)
		}
		if inner.calls != 2 {
			t.Errorf("expected reload after invalidate, got %d calls", inner.calls)
		}
	})

	t.Run("redis errors fall back to the store", func(t *testing.T) {
		client.failGet = errors.New("connection refused")
		defer func() { client.failGet = nil }()
		before := inner.calls
		if _, err := repo.GetPolicy(ctx, "T1"); err != nil {
			t.Fatalf("expected fallback, got %v", err)
		}
		if inner.calls != before+1 {
			t.Error("expected a store read on cache failure")
		}
	})
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	client := newMemClient()
	rl := NewRateLimiter(client)
	key := TriggerKey("T1", "U1")
	for i := 1; i <= 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("hit %d should be allowed: %v", i, err)
		}
	}
	if ok, _ := rl.Allow(ctx, key, 3, time.Minute); ok {
		t.Error("fourth hit should be refused")
	}
	if client.ttl[key] != time.Minute {
		t.Errorf("window not applied, ttl=%s", client.ttl[key])
	}
	if ok, _ := rl.Allow(ctx, TriggerKey("T1", "U2"), 3, time.Minute); !ok {
		t.Error("other users have their own window")
	}
}

func TestJobLockKey(t *testing.T) {
	if JobLockKey("abc") != "job-lock:abc" {
		t.Errorf("unexpected key %q", JobLockKey("abc"))
	}
}
