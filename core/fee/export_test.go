package fee

import "time"

// SetNow replaces the service clock and returns a func restoring it.
func SetNow(now func() time.Time) (restore func()) {
	orig := nowFunc
	nowFunc = now
	return func() { nowFunc = orig }
}
