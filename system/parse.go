package system

import (
	"errors"
	"os"
	"regexp"

	"github.com/blang/semver/v4"
)

const releaseFilePath = "/etc/os-release"

// matches VERSION_ID=1.2 or VERSION_ID="1.2.3"
var reExtractVersionID = regexp.MustCompile(`VERSION_ID=['"]?([^'"\s]*)`)

func parseVersion(releaseFile []byte) (semver.Version, error) {
	versionInfo := reExtractVersionID.FindSubmatch(releaseFile)
	if versionInfo == nil {
		return semver.Version{}, errors.New("VERSION_ID not found in version file")
	}
	return semver.ParseTolerant(string(versionInfo[1]))
}

// ReadOSVersion returns VERSION_ID from /etc/os-release. It is logged at
// start up to tie level reports to the node image.
func ReadOSVersion() (semver.Version, error) {
	buf, err := os.ReadFile(releaseFilePath)
	if err != nil {
		return semver.Version{}, err
	}
	return parseVersion(buf)
}
