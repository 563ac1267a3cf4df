package models

import "time"

// User 用户资料（首次认证时隐式创建）
type User struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"` // 认证系统的 subject
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio"`
	Avatar    string    `json:"avatar"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
}

// 用户名规则：3-15 位，字母数字及 . _ % + -
const (
	UsernameMinLen = 3
	UsernameMaxLen = 15
)

// ValidUsername 校验用户名
func ValidUsername(username string) bool {
	if len(username) < UsernameMinLen || len(username) > UsernameMaxLen {
		return false
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '%' || r == '+' || r == '-':
		default:
			return false
		}
	}
	return true
}
