package nats

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nodelog/slogd/data"
)

// SendLevelCmd sends a level command to the instance serving devID and
// returns its reply
func SendLevelCmd(nc *nats.Conn, instance int32, req data.LevelMsg, timeout time.Duration) (data.LevelMsg, error) {
	if req.Type == 0 {
		req.Type = data.MsgTypeForward
	}

	out, err := req.Encode()
	if err != nil {
		return data.LevelMsg{}, err
	}

	msg, err := nc.Request(SubjectLevel(instance), out, timeout)
	if err != nil {
		return data.LevelMsg{}, fmt.Errorf("Error sending level command: %w", err)
	}

	resp, err := data.DecodeLevelMsg(msg.Data)
	if err != nil {
		return data.LevelMsg{}, fmt.Errorf("Error decoding level reply: %w", err)
	}

	if resp.Type != data.MsgTypeFeedback {
		return resp, fmt.Errorf("%w: reply type %v", data.ErrInputInvalid, resp.Type)
	}

	return resp, nil
}

// GetLevels requests the level listing, compact when table is set
func GetLevels(nc *nats.Conn, instance, devID int32, table bool, timeout time.Duration) (string, error) {
	cmd := data.CmdGetLogLevel
	if table {
		cmd = data.CmdGetLogLevelTableFormat
	}
	resp, err := SendLevelCmd(nc, instance, data.LevelMsg{DevID: devID, Payload: cmd}, timeout)
	return resp.Payload, err
}

// SetLevel sends a SetLogLevel command and returns the reply string
func SetLevel(nc *nats.Conn, instance, devID int32, scope int, value string, timeout time.Duration) (string, error) {
	resp, err := SendLevelCmd(nc, instance, data.LevelMsg{
		DevID:   devID,
		Payload: data.SetCommand(scope, value),
	}, timeout)
	return resp.Payload, err
}
