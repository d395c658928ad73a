// Package validation содержит функции валидации входных данных.
package validation

// IsValidPhoneNumber проверяет, что номер телефона состоит из цифр
// с необязательным префиксом "+" и имеет разумную длину.
func IsValidPhoneNumber(number string) bool {
	if number == "" {
		return false
	}

	digits := 0
	for i, ch := range number {
		if ch == '+' {
			if i != 0 {
				return false
			}
			continue
		}
		if ch < '0' || ch > '9' {
			return false
		}
		digits++
	}

	return digits >= 9 && digits <= 15
}
