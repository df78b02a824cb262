package server

import (
	"flag"
	"testing"

	"github.com/nodelog/slogd/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags() *flag.FlagSet {
	return flag.NewFlagSet("test", flag.ContinueOnError)
}

func TestArgsDefaults(t *testing.T) {
	o, err := Args(nil, newFlags())
	require.NoError(t, err)

	assert.Equal(t, data.AllDevices, o.DevID)
	assert.Equal(t, data.SeverityInvalid, o.InitLevel)
	assert.NotEmpty(t, o.ID)
	assert.Nil(t, o.ConfDirs)
}

func TestArgsFlags(t *testing.T) {
	o, err := Args([]string{
		"-devId", "3",
		"-level", "warning",
		"-confDirs", "/etc/slog, /var/slog",
		"-id", "vf3",
	}, newFlags())
	require.NoError(t, err)

	assert.Equal(t, int32(3), o.DevID)
	assert.Equal(t, data.SeverityWarning, o.InitLevel)
	assert.Equal(t, []string{"/etc/slog", "/var/slog"}, o.ConfDirs)
	assert.Equal(t, "vf3", o.ID)
}

func TestArgsEnv(t *testing.T) {
	t.Setenv("SLOGD_DEV_ID", "2")
	t.Setenv("SLOGD_CONF", "/tmp/env.conf")
	t.Setenv("SLOGD_NATS_PORT", "4999")

	o, err := Args([]string{"-conf", "/tmp/flag.conf"}, newFlags())
	require.NoError(t, err)

	assert.Equal(t, int32(2), o.DevID)
	assert.Equal(t, "/tmp/flag.conf", o.ConfFile, "flag should win over env")
	assert.Equal(t, 4999, o.NatsPort)
}

func TestArgsInvalid(t *testing.T) {
	_, err := Args([]string{"-level", "loud"}, newFlags())
	assert.Error(t, err)

	_, err = Args([]string{"-level", "9"}, newFlags())
	assert.Error(t, err)

	_, err = Args([]string{"-devId", "64"}, newFlags())
	assert.Error(t, err)
}

func TestParseLevelArg(t *testing.T) {
	sev, ok := parseLevelArg("2")
	assert.True(t, ok)
	assert.Equal(t, data.SeverityWarning, sev)

	sev, ok = parseLevelArg("null")
	assert.True(t, ok)
	assert.Equal(t, data.SeveritySilent, sev)
}
