package route

import (
	"fmt"
	"math"
)

// FormatDistance - километры с двумя знаками
func FormatDistance(meters float64) string {
	return fmt.Sprintf("%.2f km", meters/1000)
}

// FormatDuration округляет вверх до целых минут
func FormatDuration(seconds float64) string {
	minutes := int(math.Ceil(seconds / 60))
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
