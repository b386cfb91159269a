// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"regexp"

	"echo-widget-go/internal/apperr"
	"echo-widget-go/internal/model"
	"echo-widget-go/internal/repository"
	"echo-widget-go/pkg/log"
)

// 凭证的固定词法格式：cb_ 前缀 + 32 位小写十六进制。
// 不符合格式的凭证在任何存储查询之前直接拒绝，避免无意义的查库开销。
var credentialPattern = regexp.MustCompile(`^cb_[a-f0-9]{32}$`)

// TenantService 定义了租户上下文解析的接口。
type TenantService interface {
	// ResolveContext 将一个不透明凭证解析为租户身份及其挂件配置。
	ResolveContext(ctx context.Context, credential string) (*model.TenantContext, error)
}

type tenantService struct {
	repo repository.TenantRepository
}

// NewTenantService 创建一个新的 TenantService 实例。
func NewTenantService(repo repository.TenantRepository) TenantService {
	return &tenantService{repo: repo}
}

// ResolveContext 解析租户上下文。
// 租户与配置几乎总是被同时使用，这里作为一次逻辑操作一并取出。
func (s *tenantService) ResolveContext(ctx context.Context, credential string) (*model.TenantContext, error) {
	if !credentialPattern.MatchString(credential) {
		return nil, apperr.InvalidCredentialFormat()
	}

	tenant, err := s.repo.FindByCredential(ctx, credential)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.AuthenticationFailed()
		}
		return nil, apperr.Internal(err)
	}
	if !tenant.IsActive() {
		log.Warnf("[TenantService] 非激活租户尝试访问: %s (status=%s)", tenant.TenantID, tenant.Status)
		return nil, apperr.AuthenticationFailed()
	}

	cfg, err := s.repo.FindConfigByTenantID(ctx, tenant.TenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// 租户存在但配置缺失属于数据完整性问题
			return nil, apperr.ConfigNotFound(tenant.TenantID)
		}
		return nil, apperr.Internal(err)
	}

	return &model.TenantContext{Tenant: tenant, Config: cfg}, nil
}
