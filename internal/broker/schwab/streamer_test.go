package schwab

import (
	"context"
	"testing"

	"trader/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/pkg/ws"
)

func TestStreamerReceiveOneClosedChannel(t *testing.T) {
	ch := make(chan ws.Message)
	close(ch)
	s := &Streamer{msgs: ch}

	_, err := s.ReceiveOne(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrStreamClosed))
}

func TestStreamerReceiveOneHonorsContext(t *testing.T) {
	s := &Streamer{msgs: make(chan ws.Message)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ReceiveOne(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
