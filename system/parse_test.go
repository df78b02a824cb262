package system

import (
	"testing"

	"github.com/blang/semver/v4"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in  string
		exp semver.Version
	}{
		{"VERSION_ID=\"1.2\"\nTesting with quotes", semver.Version{Major: 1, Minor: 2}},
		{"NAME=x\nVERSION_ID=1.2.352\nTesting without quotes", semver.Version{Major: 1, Minor: 2, Patch: 352}},
	}

	for _, test := range tests {
		v, err := parseVersion([]byte(test.in))
		if err != nil {
			t.Error("Got error parsing version: ", err)
			continue
		}
		if v.NE(test.exp) {
			t.Errorf("got %v, expected %v", v, test.exp)
		}
	}

	if _, err := parseVersion([]byte("NAME=x\n")); err == nil {
		t.Error("expected error for missing VERSION_ID")
	}
}
