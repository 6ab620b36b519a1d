package rules

// RequiredPassedLessons returns how many passed lessons unlock the scene at
// the given 1-based ordinal. The first scene is always open.
func RequiredPassedLessons(ordinal, unlockEvery int) int {
	if ordinal <= 1 {
		return 0
	}
	return (ordinal - 1) * max(unlockEvery, 1)
}

// IsUnlocked reports whether passedCount lessons unlock the scene at ordinal.
// Derived on every read and never stored.
func IsUnlocked(ordinal, passedCount, unlockEvery int) bool {
	return passedCount >= RequiredPassedLessons(ordinal, unlockEvery)
}
