package exception

import "github.com/yanun0323/errors"

// Alert errors
var (
	ErrNotifierRejected = errors.New("alert: notifier rejected message")
)
