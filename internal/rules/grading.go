package rules

// NormalizePercent clamps p to [0,100].
func NormalizePercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// IsPassed reports whether score out of total meets passPercent.
// Integer comparison only: score*100 >= total*passPercent.
func IsPassed(score, total, passPercent int) bool {
	if total <= 0 {
		return false
	}
	pct := NormalizePercent(passPercent)
	if pct == 0 {
		return true
	}
	return score*100 >= total*pct
}

// Percent returns floor(100*part/whole), or 0 when whole is not positive.
func Percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return part * 100 / whole
}
