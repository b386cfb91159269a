package service

import "strings"

// OriginAllowed 判断请求来源是否在租户的来源白名单内。
// 白名单是逗号分隔的条目列表，支持三种形式（任一命中即放行）：
//   - 字面量 "*"：允许任意来源；
//   - 精确匹配：条目与 Origin 原文或去掉 scheme 后的 host 相等；
//   - "*.domain" 通配：允许 domain 本身以及任意子域。
//
// 空 Origin 或空白名单一律拒绝（默认拒绝）。是否在缺失 Origin 头时放行
// 由调度层决定，本函数只回答"这个来源允不允许"。
func OriginAllowed(origin, allowedOrigins string) bool {
	if origin == "" || strings.TrimSpace(allowedOrigins) == "" {
		return false
	}

	// 白名单条目通常写裸域名（"x.com"），而 Origin 头自带 scheme，
	// 比较时同时尝试原文与剥掉 scheme 的 host 形式。
	host := stripScheme(origin)

	for _, entry := range strings.Split(allowedOrigins, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			return true
		}
		if entry == origin || entry == host {
			return true
		}
		if base, ok := strings.CutPrefix(entry, "*."); ok {
			if host == base || strings.HasSuffix(host, "."+base) {
				return true
			}
		}
	}
	return false
}

func stripScheme(origin string) string {
	if h, ok := strings.CutPrefix(origin, "https://"); ok {
		return h
	}
	if h, ok := strings.CutPrefix(origin, "http://"); ok {
		return h
	}
	return origin
}
