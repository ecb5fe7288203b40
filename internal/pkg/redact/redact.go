// redact — маскировка чувствительных значений перед логированием.
// E-mail участников исследований — персональные данные, sptoken — бессрочная
// (в пределах TTL) capability; ни то, ни другое не должно попадать в логи целиком.
package redact

import "strings"

// Email маскирует локальную часть адреса, оставляя первые два символа и домен.
func Email(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return "***"
	}

	local, domain := parts[0], parts[1]
	if len(local) > 2 {
		local = local[:2] + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Token оставляет первые 4 символа токена: достаточно для корреляции
// обращений в поддержку, бесполезно для подбора.
func Token(s string) string {
	if len(s) <= 4 {
		return "****"
	}

	return s[:4] + "***"
}

func Password() string { return "[REDACTED_PASSWORD]" }
