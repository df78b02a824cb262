//go:build linux

package system

import (
	"log"
	"log/syslog"
)

// EnableSyslog sends the standard logger to syslog with the given tag
func EnableSyslog(tag string) error {
	lgr, err := syslog.New(syslog.LOG_NOTICE|syslog.LOG_DAEMON, tag)
	if err != nil {
		return err
	}

	log.SetOutput(lgr)
	// syslog stamps every line
	log.SetFlags(0)

	return nil
}
