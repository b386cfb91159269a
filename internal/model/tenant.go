// Package model 包含了应用的数据模型定义。
package model

import "time"

// 无限配额租户（owner 套餐）不走旁路分支，而是使用一个足够大的配额常量，
// 让限流算法对所有租户保持一致。
const UnlimitedQuota = 1_000_000_000

// Tenant 代表一个客户账号。凭证唯一标识一个激活租户。
// 记录由外部注册流程创建，核心服务只读。
type Tenant struct {
	ID               uint      `gorm:"primaryKey" json:"-"`
	TenantID         string    `gorm:"uniqueIndex;size:64;not null" json:"tenantId"`
	Credential       string    `gorm:"uniqueIndex;size:64;not null" json:"-"`
	Plan             string    `gorm:"size:32;default:free" json:"plan"`
	Status           string    `gorm:"size:16;default:active" json:"status"`
	RateLimitPerHour int       `json:"rateLimitPerHour"`
	RateLimitPerDay  int       `json:"rateLimitPerDay"`
	RetrievalEnabled bool      `json:"retrievalEnabled"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// IsActive 判断租户是否处于可用状态。
func (t *Tenant) IsActive() bool {
	return t.Status == "active"
}

// HourLimit 返回小时配额，未配置时按无限处理。
func (t *Tenant) HourLimit() int {
	if t.RateLimitPerHour <= 0 {
		return UnlimitedQuota
	}
	return t.RateLimitPerHour
}

// DayLimit 返回天配额，未配置时按无限处理。
func (t *Tenant) DayLimit() int {
	if t.RateLimitPerDay <= 0 {
		return UnlimitedQuota
	}
	return t.RateLimitPerDay
}

// WidgetConfig 是租户挂件的行为配置，与 Tenant 一一对应。
// 由外部控制台修改，核心服务按请求读取（短 TTL 缓存）。
type WidgetConfig struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	TenantID        string    `gorm:"uniqueIndex;size:64;not null" json:"tenantId"`
	PrimaryColor    string    `gorm:"size:16;default:#4F46E5" json:"primaryColor"`
	Position        string    `gorm:"size:16;default:bottom-right" json:"position"`
	GreetingMessage string    `gorm:"size:512" json:"greetingMessage"`
	BotName         string    `gorm:"size:64;default:Echo" json:"botName"`
	AvatarURL       string    `gorm:"size:512" json:"avatarUrl"`
	ModelName       string    `gorm:"size:64" json:"modelName"`
	Temperature     float64   `gorm:"default:0.7" json:"temperature"`
	MaxTokens       int       `gorm:"default:1024" json:"maxTokens"`
	SystemPrompt    string    `gorm:"type:text" json:"systemPrompt"`
	AllowedOrigins  string    `gorm:"type:text" json:"allowedOrigins"`
	PlaceholderText string    `gorm:"size:256" json:"placeholderText"`
	ShowBranding    bool      `gorm:"default:true" json:"showBranding"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (WidgetConfig) TableName() string {
	return "widget_configs"
}

// PublicWidgetConfigDTO 是暴露给挂件前端的配置子集，不包含系统提示词、
// 来源白名单等不对外的字段。
type PublicWidgetConfigDTO struct {
	PrimaryColor    string `json:"primaryColor"`
	Position        string `json:"position"`
	GreetingMessage string `json:"greetingMessage"`
	BotName         string `json:"botName"`
	AvatarURL       string `json:"avatarUrl,omitempty"`
	PlaceholderText string `json:"placeholderText"`
	ShowBranding    bool   `json:"showBranding"`
}

// PublicView 返回配置的公开子集。
func (c *WidgetConfig) PublicView() PublicWidgetConfigDTO {
	return PublicWidgetConfigDTO{
		PrimaryColor:    c.PrimaryColor,
		Position:        c.Position,
		GreetingMessage: c.GreetingMessage,
		BotName:         c.BotName,
		AvatarURL:       c.AvatarURL,
		PlaceholderText: c.PlaceholderText,
		ShowBranding:    c.ShowBranding,
	}
}

// TenantContext 是一次请求解析出的租户上下文：租户记录与其挂件配置。
// 两者几乎总是被同时使用，因此作为一个整体返回。
type TenantContext struct {
	Tenant *Tenant
	Config *WidgetConfig
}
