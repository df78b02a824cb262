//go:build !linux

package system

import "errors"

// EnableSyslog is only supported on linux
func EnableSyslog(_ string) error {
	return errors.New("Syslog not supported on this platform")
}
