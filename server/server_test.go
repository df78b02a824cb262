package server

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nodelog/slogd/data"
	"github.com/nodelog/slogd/firmware"
	natsc "github.com/nodelog/slogd/nats"
	"github.com/nodelog/slogd/notify"
	"github.com/nodelog/slogd/shm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 2 * time.Second

type testNode struct {
	rs   *shm.MemoryStore
	sig  *notify.MemorySignal
	sink *firmware.MemorySink
	port int
	conf string
}

func newTestNode(t *testing.T) *testNode {
	port, err := FreePort()
	require.NoError(t, err)

	n := &testNode{
		rs:   shm.NewMemoryStore(),
		sig:  notify.NewMemorySignal(),
		sink: firmware.NewMemorySink([]int32{0, 1}, []firmware.ChannelType{firmware.ChannelTS}),
		port: port,
		conf: filepath.Join(t.TempDir(), "slog.conf"),
	}
	require.NoError(t, os.WriteFile(n.conf, []byte(testConf), 0600))
	return n
}

func (n *testNode) options(t *testing.T, devID int32) Options {
	master := devID == data.AllDevices
	o := Options{
		DevID:        devID,
		NatsServer:   fmt.Sprintf("nats://127.0.0.1:%v", n.port),
		NatsPort:     n.port,
		Registry:     testRegistry(t),
		RegionStore:  n.rs,
		Signal:       n.sig.Endpoint(master),
		Sink:         n.sink,
		NatsHTTPPort: 0,
	}
	if master {
		o.ConfFile = n.conf
	}
	return o
}

func TestServerGetSet(t *testing.T) {
	n := newTestNode(t)

	nc, _, stop, err := TestServer(n.options(t, data.AllDevices))
	require.NoError(t, err)
	defer stop()

	reply, err := natsc.SetLevel(nc, data.AllDevices, data.AllDevices, data.ScopeGlobal, "warning", testTimeout)
	require.NoError(t, err)
	assert.Equal(t, data.ReplySuccess, reply)

	reply, err = natsc.GetLevels(nc, data.AllDevices, data.AllDevices, false, testTimeout)
	require.NoError(t, err)
	assert.Contains(t, reply, "[global]\nWARNING\n")

	reply, err = natsc.SetLevel(nc, data.AllDevices, 0, data.ScopeModule, "UNKNOWNMOD:INFO", testTimeout)
	require.NoError(t, err)
	assert.Equal(t, data.ReplyLevelError, reply)

	buf, err := os.ReadFile(n.conf)
	require.NoError(t, err)
	assert.Contains(t, string(buf), "\nglobal_level=2\n")
}

func TestServerBadEnvelope(t *testing.T) {
	n := newTestNode(t)

	nc, _, stop, err := TestServer(n.options(t, data.AllDevices))
	require.NoError(t, err)
	defer stop()

	msg, err := nc.Request(natsc.SubjectLevel(data.AllDevices), []byte("short"), testTimeout)
	require.NoError(t, err)

	resp, err := data.DecodeLevelMsg(msg.Data)
	require.NoError(t, err)
	assert.Equal(t, data.MsgTypeFeedback, resp.Type)
	assert.Equal(t, data.ReplyLevelError, resp.Payload)
}

func TestServerMasterAndVF(t *testing.T) {
	n := newTestNode(t)

	nc, _, stop, err := TestServer(n.options(t, data.AllDevices))
	require.NoError(t, err)
	defer stop()

	vfOpts := n.options(t, 1)
	vfOpts.NatsDisableServer = true
	// deployments pass the node config path to every instance
	vfOpts.ConfFile = n.conf
	_, vf, stopVF, err := TestServer(vfOpts)
	require.NoError(t, err)
	defer stopVF()

	reply, err := natsc.SetLevel(nc, data.AllDevices, data.AllDevices, data.ScopeGlobal, "INFO", testTimeout)
	require.NoError(t, err)
	require.Equal(t, data.ReplySuccess, reply)

	// the VF never touches the config file, it sees the published snapshot
	reply, err = natsc.GetLevels(nc, 1, 1, true, testTimeout)
	require.NoError(t, err)
	assert.Contains(t, reply, "Global:INFO,")

	// the watcher keeps the VF store current without a request
	deadline := time.Now().Add(5 * time.Second)
	for vf.Service().Store.GetGlobal(data.ChannelDiagnostic) != data.SeverityInfo {
		if time.Now().After(deadline) {
			t.Fatal("VF store not refreshed")
		}
		time.Sleep(20 * time.Millisecond)
	}

	confBefore, err := os.ReadFile(n.conf)
	require.NoError(t, err)

	reply, err = natsc.SetLevel(nc, 1, 1, data.ScopeGlobal, "DEBUG", testTimeout)
	require.NoError(t, err)
	assert.Equal(t, data.ReplyUnknown, reply)

	confAfter, err := os.ReadFile(n.conf)
	require.NoError(t, err)
	assert.Equal(t, string(confBefore), string(confAfter))

	reply, err = natsc.GetLevels(nc, 1, 1, true, testTimeout)
	require.NoError(t, err)
	assert.Contains(t, reply, "Global:INFO,")

	owner, err := shm.ReadOwner(n.rs, shm.DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), owner.PID)
}

func TestServerSharedMemoryReleased(t *testing.T) {
	n := newTestNode(t)

	_, _, stop, err := TestServer(n.options(t, data.AllDevices))
	require.NoError(t, err)
	assert.True(t, n.rs.Exists(shm.DefaultKey))

	stop()
	assert.False(t, n.rs.Exists(shm.DefaultKey))
}
