package server

import (
	"fmt"
	"strings"
	"testing"

	"github.com/nodelog/slogd/data"
	"github.com/nodelog/slogd/level"
	"github.com/nodelog/slogd/notify"
	"github.com/nodelog/slogd/shm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeReply(t *testing.T) {
	resp := data.LevelMsg{Type: data.MsgTypeFeedback, DevID: 2, Payload: data.ReplySuccess}
	got, err := data.DecodeLevelMsg(encodeReply(resp))
	require.NoError(t, err)
	assert.Equal(t, resp, got)
}

func TestEncodeReplyTooLarge(t *testing.T) {
	// enough modules that the table listing overflows the envelope
	var mods []data.ModuleDescriptor
	for i := 0; i < 300; i++ {
		mods = append(mods, data.ModuleDescriptor{Name: fmt.Sprintf("MODULE%03d", i)})
	}
	reg, err := data.NewRegistry(mods)
	require.NoError(t, err)

	store := level.NewStore(reg)
	svc := NewService(ServiceParams{
		Store:  store,
		Pub:    shm.NewPublisher(shm.NewMemoryStore(), "", data.AllDevices, "master"),
		Signal: notify.NewMemorySignal().Endpoint(true),
	})

	resp := svc.Dispatch(data.LevelMsg{DevID: data.AllDevices, Payload: data.CmdGetLogLevelTableFormat})
	require.True(t, len(resp.Payload) >= data.MsgMaxLen)
	require.True(t, strings.HasPrefix(resp.Payload, "Global:ERROR,"))

	got, err := data.DecodeLevelMsg(encodeReply(resp))
	require.NoError(t, err)
	assert.Equal(t, data.MsgTypeFeedback, got.Type)
	assert.Equal(t, data.ReplyCopyError, got.Payload)
}
