package data

import "errors"

// Error kinds. Call sites wrap these with context so errors.Is can be used
// to classify a failure.
var (
	ErrArgumentNull    = errors.New("argument null")
	ErrInputInvalid    = errors.New("input invalid")
	ErrPathInvalid     = errors.New("config file path invalid")
	ErrPathResolution  = errors.New("config file path resolution failed")
	ErrOpenFailed      = errors.New("open failed")
	ErrReadFailed      = errors.New("read failed")
	ErrAllocation      = errors.New("allocation failed")
	ErrStringCopy      = errors.New("string copy failed")
	ErrLevelSyntax     = errors.New("level info illegal")
	ErrSetLevel        = errors.New("set level failed")
	ErrShmUnavailable  = errors.New("shared memory unavailable")
	ErrNotifyInit      = errors.New("notify init failed")
	ErrNotifyFailed    = errors.New("level notify failed")
	ErrNotMaster       = errors.New("not the master instance")
	ErrOwnerConflict   = errors.New("shared memory owned by another process")
	ErrMessageTooLarge = errors.New("message too large")
)

// Fixed reply strings returned to level tooling
const (
	ReplySuccess     = "Set log level successfully!"
	ReplyConfError   = "Config file is invalid or can not be accessed."
	ReplyLevelError  = "Level setting info is illegal."
	ReplyMallocError = "Memory allocation failed."
	ReplyCopyError   = "String copy failed."
	ReplyUnknown     = "Unknown error."
)

// ReplyString maps a request result to the string sent back to the caller.
// ok is returned unchanged when err is nil.
func ReplyString(err error, ok string) string {
	switch {
	case err == nil:
		return ok
	case errors.Is(err, ErrPathInvalid),
		errors.Is(err, ErrPathResolution),
		errors.Is(err, ErrOpenFailed):
		return ReplyConfError
	case errors.Is(err, ErrLevelSyntax):
		return ReplyLevelError
	case errors.Is(err, ErrAllocation):
		return ReplyMallocError
	case errors.Is(err, ErrStringCopy):
		return ReplyCopyError
	default:
		return ReplyUnknown
	}
}
