package utils

import (
	"net/url"
	"regexp"
	"strings"
)

// SensitiveKeywords 敏感配置项关键字 (用于脱敏)
var SensitiveKeywords = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"credential",
}

// keyValuePasswordRe libpq风格连接串中的密码: password=xxx
var keyValuePasswordRe = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|\S+)`)

// IsSensitiveKey 检查配置项名称是否敏感
func IsSensitiveKey(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range SensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// RedactValue 脱敏单个配置值
func RedactValue(name, value string) string {
	if !IsSensitiveKey(name) || value == "" {
		return value
	}
	return "***"
}

// RedactDSN 脱敏数据库/Redis连接串中的密码
// 支持URL形式(postgres://u:p@h/db, redis://:p@h:6379)和key=value形式
func RedactDSN(dsn string) string {
	if strings.Contains(dsn, "://") {
		parsed, err := url.Parse(dsn)
		if err == nil && parsed.User != nil {
			if _, has := parsed.User.Password(); has {
				parsed.User = url.UserPassword(parsed.User.Username(), "***")
				return parsed.String()
			}
			return dsn
		}
	}
	return keyValuePasswordRe.ReplaceAllString(dsn, "${1}***")
}

// RedactMap 脱敏配置映射, 返回新的map (用于日志)
func RedactMap(values map[string]string) map[string]string {
	result := make(map[string]string, len(values))
	for name, value := range values {
		result[name] = RedactValue(name, value)
	}
	return result
}
