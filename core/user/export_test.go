package user

import "time"

// SetNowFunc replaces the clock of the package and returns a func restoring it.
func SetNowFunc(fn func() time.Time) (restore func()) {
	orig := nowFunc
	nowFunc = fn
	return func() { nowFunc = orig }
}
