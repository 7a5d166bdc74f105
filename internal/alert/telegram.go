package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"trader/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

const _telegramBaseUrl = "https://api.telegram.org"

// Telegram posts alerts to a chat through the Bot API.
type Telegram struct {
	client *http.Client
	token  string
	chatID string
}

func NewTelegram(client *http.Client, token, chatID string) *Telegram {
	if client == nil {
		client = http.DefaultClient
	}
	return &Telegram{client: client, token: token, chatID: chatID}
}

type telegramSendRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type telegramSendResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Send(ctx context.Context, message string, isError bool) error {
	text := message
	if isError {
		text = "⚠ " + message
	}

	payload, err := sonic.ConfigFastest.Marshal(telegramSendRequest{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return errors.Wrap(err, "marshal telegram payload")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", _telegramBaseUrl, t.token)
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build telegram request")
	}
	r.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(r)
	if err != nil {
		return errors.Wrap(err, "send telegram request")
	}
	defer resp.Body.Close()

	var data telegramSendResponse
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(&data); err != nil {
		return errors.Wrap(err, "decode telegram response")
	}
	if !data.OK {
		return errors.Wrapf(exception.ErrNotifierRejected, "telegram: %s", data.Description)
	}
	return nil
}
