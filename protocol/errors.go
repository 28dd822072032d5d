package protocol

import "errors"

var (
	ErrChecksum   = errors.New("checksum mismatch")
	ErrFrameSize  = errors.New("frame length does not match layout")
	ErrBufferSize = errors.New("destination buffer size mismatch")
	ErrLayout     = errors.New("unknown packet layout")
)
