package sys

import "os"

// Unsetenv clears keys from the process environment and returns a func that
// restores their previous values. Callers defer the restore so it runs on
// every exit path.
func Unsetenv(keys ...string) (restore func()) {
	type prior struct {
		key   string
		value string
		set   bool
	}
	var saved []prior
	for _, k := range keys {
		v, ok := os.LookupEnv(k)
		saved = append(saved, prior{k, v, ok})
		os.Unsetenv(k)
	}
	return func() {
		for _, p := range saved {
			if p.set {
				os.Setenv(p.key, p.value)
			} else {
				os.Unsetenv(p.key)
			}
		}
	}
}
