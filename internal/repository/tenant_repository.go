// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"echo-widget-go/internal/model"
	"echo-widget-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ErrNotFound 表示查询未命中任何记录。
var ErrNotFound = errors.New("record not found")

// 挂件配置的缓存有效期。必须远小于一个限流窗口，
// 保证配置变更（例如调低配额、收紧来源白名单）在一个窗口内生效。
const configCacheTTL = 60 * time.Second

// TenantRepository 定义了租户与挂件配置的读取接口。
type TenantRepository interface {
	FindByCredential(ctx context.Context, credential string) (*model.Tenant, error)
	FindConfigByTenantID(ctx context.Context, tenantID string) (*model.WidgetConfig, error)
}

type tenantRepository struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewTenantRepository 创建一个新的 TenantRepository 实例。
// 挂件配置读取带 Redis 短 TTL 缓存，租户记录本身不缓存（凭证校验走主库）。
func NewTenantRepository(db *gorm.DB, rdb *redis.Client) TenantRepository {
	return &tenantRepository{db: db, rdb: rdb}
}

// FindByCredential 根据凭证查找租户记录。
func (r *tenantRepository) FindByCredential(ctx context.Context, credential string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := r.db.WithContext(ctx).Where("credential = ?", credential).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant: %w", err)
	}
	return &tenant, nil
}

// FindConfigByTenantID 根据租户 ID 查找挂件配置，优先读缓存。
func (r *tenantRepository) FindConfigByTenantID(ctx context.Context, tenantID string) (*model.WidgetConfig, error) {
	cacheKey := fmt.Sprintf("widgetcfg:%s", tenantID)

	if r.rdb != nil {
		cached, err := r.rdb.Get(ctx, cacheKey).Result()
		if err == nil {
			var cfg model.WidgetConfig
			if jsonErr := json.Unmarshal([]byte(cached), &cfg); jsonErr == nil {
				return &cfg, nil
			}
			// 缓存内容损坏时回退主库并覆盖
			log.Warnf("[TenantRepository] 挂件配置缓存内容无效, tenant: %s", tenantID)
		} else if err != redis.Nil {
			// Redis 故障降级为直读主库
			log.Warnf("[TenantRepository] 读取配置缓存失败: %v", err)
		}
	}

	var cfg model.WidgetConfig
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query widget config: %w", err)
	}

	if r.rdb != nil {
		if data, jsonErr := json.Marshal(&cfg); jsonErr == nil {
			if setErr := r.rdb.Set(ctx, cacheKey, data, configCacheTTL).Err(); setErr != nil {
				log.Warnf("[TenantRepository] 写入配置缓存失败: %v", setErr)
			}
		}
	}

	return &cfg, nil
}
