package service

import (
	"context"
	"fmt"
	"time"

	"echo-widget-go/internal/apperr"
	"echo-widget-go/internal/repository"
	"echo-widget-go/pkg/log"
)

// 固定窗口长度。计数器的 TTL 与窗口长度一致，到期自动清零，
// 应用侧从不主动清理。窗口边界的短时突发（至多 2 倍）是已接受的权衡。
const (
	hourWindow   = time.Hour
	dayWindow    = 24 * time.Hour
	minuteWindow = time.Minute
)

// RateLimitService 定义了限流准入的接口。
type RateLimitService interface {
	// Admit 对租户执行小时/天双窗口准入检查。
	// 两个计数器无条件自增（固定窗口的"记录尝试"语义），随后比较自增后的值；
	// 小时窗先判，天窗只在小时窗通过后才判。
	Admit(ctx context.Context, tenantID string, hourLimit, dayLimit int) error
	// AdmitPublic 对公共路由按客户端 IP + 路径执行粗粒度分钟窗口准入。
	AdmitPublic(ctx context.Context, clientIP, path string) error
}

type rateLimitService struct {
	counters    repository.CounterRepository
	publicLimit int
	now         func() time.Time
}

// NewRateLimitService 创建一个新的 RateLimitService 实例。
func NewRateLimitService(counters repository.CounterRepository, publicPerMinute int) RateLimitService {
	if publicPerMinute <= 0 {
		publicPerMinute = 120
	}
	return &rateLimitService{
		counters:    counters,
		publicLimit: publicPerMinute,
		now:         time.Now,
	}
}

// Admit 执行租户级双窗口准入。
func (s *rateLimitService) Admit(ctx context.Context, tenantID string, hourLimit, dayLimit int) error {
	now := s.now()
	hourKey := fmt.Sprintf("rl:%s:h:%d", tenantID, now.Unix()/3600)
	dayKey := fmt.Sprintf("rl:%s:d:%d", tenantID, now.Unix()/86400)

	hourCount, err := s.counters.IncrWithTTL(ctx, hourKey, hourWindow)
	if err != nil {
		// 计数器存储故障时放行：宁可短暂超卖配额，也不让挂件整体不可用
		log.Warnf("[RateLimit] 小时计数器自增失败, tenant: %s, err: %v", tenantID, err)
		return nil
	}
	dayCount, err := s.counters.IncrWithTTL(ctx, dayKey, dayWindow)
	if err != nil {
		log.Warnf("[RateLimit] 天计数器自增失败, tenant: %s, err: %v", tenantID, err)
		return nil
	}

	if hourCount > int64(hourLimit) {
		retryAfter := int(3600 - now.Unix()%3600)
		log.Infow("租户触发小时限流",
			"tenantId", tenantID, "count", hourCount, "limit", hourLimit, "retryAfter", retryAfter)
		return apperr.RateLimitExceeded("hourly", retryAfter)
	}
	if dayCount > int64(dayLimit) {
		retryAfter := int(86400 - now.Unix()%86400)
		log.Infow("租户触发天级限流",
			"tenantId", tenantID, "count", dayCount, "limit", dayLimit, "retryAfter", retryAfter)
		return apperr.RateLimitExceeded("daily", retryAfter)
	}
	return nil
}

// AdmitPublic 执行公共路由的 IP 级准入。
func (s *rateLimitService) AdmitPublic(ctx context.Context, clientIP, path string) error {
	now := s.now()
	key := fmt.Sprintf("rl:ip:%s:%s:m:%d", clientIP, path, now.Unix()/60)

	count, err := s.counters.IncrWithTTL(ctx, key, minuteWindow)
	if err != nil {
		log.Warnf("[RateLimit] 公共计数器自增失败, ip: %s, err: %v", clientIP, err)
		return nil
	}
	if count > int64(s.publicLimit) {
		retryAfter := int(60 - now.Unix()%60)
		return apperr.RateLimitExceeded("minute", retryAfter)
	}
	return nil
}
