package schwab

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"

	"trader/internal/broker"
	"trader/internal/model"
	"trader/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
)

// Streamer is one live level-one streaming session. It is single-use: after
// any transport failure the owner closes it and dials a fresh one, because
// the server forgets logins and subscriptions across connections.
type Streamer struct {
	wss    *ws.WebSocket
	info   streamerInfo
	tokens TokenSource

	reqID  atomic.Int64
	msgs   <-chan ws.Message
	cancel func()
}

// NewDialer returns a broker.Dialer that resolves the streaming endpoint from
// user preferences and opens a fresh websocket per call.
func NewDialer(rest *Client, tokens TokenSource) broker.Dialer {
	return func(ctx context.Context) (broker.Streamer, error) {
		info, err := rest.userPreference(ctx)
		if err != nil {
			return nil, err
		}

		wss := ws.New(ctx, info.SocketUrl)
		if err := wss.Start(ctx); err != nil {
			return nil, errors.Wrap(exception.ErrBrokerTransport, err.Error())
		}

		ch, cancel := wss.Subscribe()
		return &Streamer{
			wss:    wss,
			info:   info,
			tokens: tokens,
			msgs:   ch,
			cancel: cancel,
		}, nil
	}
}

type streamRequest struct {
	Service    string            `json:"service"`
	Command    string            `json:"command"`
	RequestID  string            `json:"requestid"`
	CustomerID string            `json:"SchwabClientCustomerId"`
	CorrelID   string            `json:"SchwabClientCorrelId"`
	Parameters map[string]string `json:"parameters"`
}

type streamRequestEnvelope struct {
	Requests []streamRequest `json:"requests"`
}

type streamAck struct {
	Service   string `json:"service"`
	Command   string `json:"command"`
	RequestID string `json:"requestid"`
	Content   struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"content"`
}

type ackEnvelope struct {
	Response []streamAck `json:"response"`
}

func (s *Streamer) Login(ctx context.Context) error {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return errors.Wrap(exception.ErrBrokerAuth, err.Error())
	}

	if err := s.sendAndAck(ctx, "ADMIN", "LOGIN", map[string]string{
		"Authorization":          token,
		"SchwabClientChannel":    s.info.Channel,
		"SchwabClientFunctionId": s.info.FunctionID,
	}); err != nil {
		return errors.Wrap(exception.ErrStreamLoginRejected, err.Error())
	}
	return nil
}

func (s *Streamer) Subscribe(ctx context.Context, kind broker.SubscriptionKind, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	if err := s.sendAndAck(ctx, string(kind), "ADD", map[string]string{
		"keys":   strings.Join(symbols, ","),
		"fields": levelOneFields(kind),
	}); err != nil {
		return errors.Wrap(exception.ErrStreamSubscribe, err.Error())
	}
	return nil
}

func (s *Streamer) Unsubscribe(ctx context.Context, kind broker.SubscriptionKind, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	if err := s.sendAndAck(ctx, string(kind), "UNSUBS", map[string]string{
		"keys": strings.Join(symbols, ","),
	}); err != nil {
		return errors.Wrap(exception.ErrStreamSubscribe, err.Error())
	}
	return nil
}

// sendAndAck issues one command and blocks until the matching ack. A nonzero
// ack code is a command rejection.
func (s *Streamer) sendAndAck(ctx context.Context, service, command string, params map[string]string) error {
	requestID := strconv.FormatInt(s.reqID.Add(1), 10)
	appendIntoRegister := false
	if err := s.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, wss *ws.WebSocket) error {
			payload := streamRequestEnvelope{Requests: []streamRequest{{
				Service:    service,
				Command:    command,
				RequestID:  requestID,
				CustomerID: s.info.CustomerID,
				CorrelID:   s.info.CorrelID,
				Parameters: params,
			}}}

			if err := wss.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write request").With("service", service).With("command", command)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := ws.ReadMessage[ackEnvelope](m)
			if !ok {
				return false, nil
			}
			for _, ack := range resp.Response {
				if ack.RequestID != requestID || ack.Service != service {
					continue
				}
				if ack.Content.Code != 0 {
					return false, errors.Errorf("%s %s rejected, code %d: %s", service, command, ack.Content.Code, ack.Content.Msg)
				}
				return true, nil
			}
			return false, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

// ReceiveOne blocks for the next inbound frame. Acks and heartbeats yield an
// empty slice with a nil error; they still prove the connection is alive.
func (s *Streamer) ReceiveOne(ctx context.Context) ([]model.QuoteUpdate, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-sys.Shutdown():
		return nil, errors.Wrap(exception.ErrStreamClosed, "process shutting down")
	case m, ok := <-s.msgs:
		if !ok {
			return nil, errors.Wrap(exception.ErrStreamClosed, "message channel closed")
		}
		env, ok := ws.ReadMessage[streamEnvelope](m)
		if !ok {
			return nil, nil
		}
		return parseQuoteUpdates(env), nil
	}
}

func (s *Streamer) Close() error {
	s.cancel()
	s.wss.Close()
	return nil
}
