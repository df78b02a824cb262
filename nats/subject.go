package nats

import (
	"fmt"

	"github.com/nodelog/slogd/data"
)

// SubjectLevel returns the subject an instance serves level requests on.
// The master instance uses "slogd.level", a VF instance appends its device
// id.
func SubjectLevel(devID int32) string {
	if devID == data.AllDevices {
		return "slogd.level"
	}
	return fmt.Sprintf("slogd.level.%v", devID)
}
