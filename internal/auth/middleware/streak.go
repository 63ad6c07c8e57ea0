package auth

import "time"

// NextStreak returns the login streak after a login at now. Days are UTC
// calendar days: a second login on the same day keeps the streak, a login on
// the following day extends it, anything later starts over at 1.
func NextStreak(last, now time.Time, streak int) int {
	if last.Unix() <= 0 {
		return 1
	}
	ly, lm, ld := last.UTC().Date()
	lastDay := time.Date(ly, lm, ld, 0, 0, 0, 0, time.UTC)
	ny, nm, nd := now.UTC().Date()
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)

	switch {
	case today.Equal(lastDay):
		if streak < 1 {
			return 1
		}
		return streak
	case today.Equal(lastDay.AddDate(0, 0, 1)):
		return streak + 1
	default:
		return 1
	}
}
