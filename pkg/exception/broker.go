package exception

import "github.com/yanun0323/errors"

// Broker facade errors. Every provider-specific failure is normalized into
// one of these at the facade boundary before it reaches the stream client or
// the order lifecycle manager.
var (
	ErrBrokerAuth          = errors.New("broker: authentication failed")
	ErrBrokerTransport     = errors.New("broker: transport failure")
	ErrBrokerRequest       = errors.New("broker: request rejected")
	ErrBrokerUnsupported   = errors.New("broker: operation unsupported")
	ErrBrokerEmptyResponse = errors.New("broker: empty response")
)
