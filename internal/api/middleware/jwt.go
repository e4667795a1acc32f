package middleware

import (
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type tokenClaims struct {
	jwt.RegisteredClaims
	Login string `json:"login"`
}

// UserIDFromToken 从 Authorization 头中解析 JWT 并返回用户 ID。
//
// 身份识别是可选的：头缺失或 token 无效只返回 ok=false，
// 由调用方决定回退到查询参数还是拒绝请求。
func UserIDFromToken(authHeader string, jwtSecret string) (uint, bool) {
	if authHeader == "" || jwtSecret == "" {
		return 0, false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return 0, false
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return 0, false
	}

	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || uid == 0 {
		return 0, false
	}
	return uint(uid), true
}
