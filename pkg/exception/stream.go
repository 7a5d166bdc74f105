package exception

import "github.com/yanun0323/errors"

// Stream errors
var (
	ErrStreamNotRunning     = errors.New("stream: client not running")
	ErrStreamClosed         = errors.New("stream: session closed")
	ErrStreamLoginRejected  = errors.New("stream: login rejected")
	ErrStreamSubscribe      = errors.New("stream: subscribe rejected")
	ErrStreamReceiveTimeout = errors.New("stream: receive timed out")
)
