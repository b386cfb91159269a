package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"echo-widget-go/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCounterRepository 是 CounterRepository 的内存实现，
// 自增在互斥锁内完成，语义与 Redis 的原子 INCR 一致。
type memCounterRepository struct {
	mu     sync.Mutex
	counts map[string]int64
	fail   bool
}

func newMemCounterRepository() *memCounterRepository {
	return &memCounterRepository{counts: make(map[string]int64)}
}

func (m *memCounterRepository) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, errors.New("counter store down")
	}
	m.counts[key]++
	return m.counts[key], nil
}

func newTestRateLimitService(counters *memCounterRepository, at time.Time) *rateLimitService {
	return &rateLimitService{
		counters:    counters,
		publicLimit: 3,
		now:         func() time.Time { return at },
	}
}

func TestAdmitHourlyLimit(t *testing.T) {
	counters := newMemCounterRepository()
	// 窗口起点后 600 秒
	now := time.Unix(100*3600+600, 0)
	svc := newTestRateLimitService(counters, now)

	hourLimit := 3
	for i := 0; i < hourLimit; i++ {
		require.NoError(t, svc.Admit(context.Background(), "tenant-a", hourLimit, 100))
	}

	err := svc.Admit(context.Background(), "tenant-a", hourLimit, 100)
	require.Error(t, err)
	e := apperr.From(err)
	assert.Equal(t, apperr.KindRateLimitExceeded, e.Kind)
	assert.Equal(t, "hourly", e.Window)
	assert.Equal(t, 3600-600, e.RetryAfter)
}

func TestAdmitDailyLimit(t *testing.T) {
	counters := newMemCounterRepository()
	now := time.Unix(50*86400+7200, 0)
	svc := newTestRateLimitService(counters, now)

	dayLimit := 2
	require.NoError(t, svc.Admit(context.Background(), "tenant-b", 1000, dayLimit))
	require.NoError(t, svc.Admit(context.Background(), "tenant-b", 1000, dayLimit))

	err := svc.Admit(context.Background(), "tenant-b", 1000, dayLimit)
	require.Error(t, err)
	e := apperr.From(err)
	assert.Equal(t, "daily", e.Window)
	assert.Equal(t, 86400-7200, e.RetryAfter)
}

// 小时窗先于天窗判定：两个配额同时耗尽时报告 hourly。
func TestAdmitHourlyCheckedBeforeDaily(t *testing.T) {
	counters := newMemCounterRepository()
	svc := newTestRateLimitService(counters, time.Unix(3600, 0))

	require.NoError(t, svc.Admit(context.Background(), "tenant-c", 1, 1))

	err := svc.Admit(context.Background(), "tenant-c", 1, 1)
	require.Error(t, err)
	assert.Equal(t, "hourly", apperr.From(err).Window)
}

// 天计数器无条件自增：即使请求被小时窗拒绝也记录尝试。
func TestAdmitRecordsAttemptInBothWindows(t *testing.T) {
	counters := newMemCounterRepository()
	now := time.Unix(3600, 0)
	svc := newTestRateLimitService(counters, now)

	for i := 0; i < 5; i++ {
		_ = svc.Admit(context.Background(), "tenant-d", 2, 100)
	}

	dayKey := "rl:tenant-d:d:0"
	counters.mu.Lock()
	defer counters.mu.Unlock()
	assert.Equal(t, int64(5), counters.counts[dayKey])
}

// 并发准入正确性：N 个并发请求中恰好 limit 个通过。
func TestAdmitConcurrency(t *testing.T) {
	counters := newMemCounterRepository()
	svc := newTestRateLimitService(counters, time.Unix(7200, 0))

	const n = 25
	const hourLimit = 5

	var wg sync.WaitGroup
	admitted := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Admit(context.Background(), "tenant-e", hourLimit, 1000); err == nil {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	assert.Equal(t, hourLimit, count)
}

// 计数器存储故障时放行，不让挂件整体不可用。
func TestAdmitFailsOpenOnStoreError(t *testing.T) {
	counters := newMemCounterRepository()
	counters.fail = true
	svc := newTestRateLimitService(counters, time.Unix(0, 0))

	assert.NoError(t, svc.Admit(context.Background(), "tenant-f", 1, 1))
}

func TestAdmitPublic(t *testing.T) {
	counters := newMemCounterRepository()
	now := time.Unix(90, 0)
	svc := newTestRateLimitService(counters, now)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AdmitPublic(context.Background(), "1.2.3.4", "/health"))
	}

	err := svc.AdmitPublic(context.Background(), "1.2.3.4", "/health")
	require.Error(t, err)
	e := apperr.From(err)
	assert.Equal(t, "minute", e.Window)
	assert.Equal(t, 30, e.RetryAfter)

	// 不同 IP 不受影响
	assert.NoError(t, svc.AdmitPublic(context.Background(), "5.6.7.8", "/health"))
}
