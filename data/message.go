package data

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Message types
const (
	MsgTypeForward  uint32 = 1
	MsgTypeFeedback uint32 = 2
)

// MsgMaxLen is the size of the payload buffer in a LevelMsg
const MsgMaxLen = 4096

// msgHeaderLen is msg type + device id
const msgHeaderLen = 8

// LevelMsgLen is the size of an encoded LevelMsg
const LevelMsgLen = msgHeaderLen + MsgMaxLen

// Commands understood by the level service
const (
	CmdGetLogLevel            = "GetLogLevel"
	CmdGetLogLevelTableFormat = "GetLogLevelTableFormat"
	CmdSetLogLevel            = "SetLogLevel"
)

// Set scopes
const (
	ScopeGlobal = 0
	ScopeModule = 1
	ScopeEvent  = 2
)

// LevelMsg is the fixed-size envelope used for both requests and responses
type LevelMsg struct {
	Type    uint32
	DevID   int32
	Payload string
}

// Encode a message to its fixed-size wire form. The payload is NUL padded.
func (m LevelMsg) Encode() ([]byte, error) {
	if len(m.Payload) >= MsgMaxLen {
		return nil, fmt.Errorf("%w: payload len %v, max %v", ErrMessageTooLarge,
			len(m.Payload), MsgMaxLen-1)
	}

	buf := make([]byte, LevelMsgLen)
	binary.LittleEndian.PutUint32(buf[0:4], m.Type)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.DevID))
	copy(buf[msgHeaderLen:], m.Payload)
	return buf, nil
}

// DecodeLevelMsg decodes the fixed-size wire form. The payload ends at the
// first NUL byte.
func DecodeLevelMsg(buf []byte) (LevelMsg, error) {
	if len(buf) != LevelMsgLen {
		return LevelMsg{}, fmt.Errorf("%w: message len %v, expected %v", ErrInputInvalid,
			len(buf), LevelMsgLen)
	}

	p := buf[msgHeaderLen:]
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}

	return LevelMsg{
		Type:    binary.LittleEndian.Uint32(buf[0:4]),
		DevID:   int32(binary.LittleEndian.Uint32(buf[4:8])),
		Payload: string(p),
	}, nil
}

// SetCommand formats a SetLogLevel command, for example
// SetCommand(ScopeModule, "TS:INFO") returns "SetLogLevel(1)[TS:INFO]"
func SetCommand(scope int, value string) string {
	return fmt.Sprintf("%v(%d)[%v]", CmdSetLogLevel, scope, value)
}
