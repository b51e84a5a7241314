// Package telegram is a minimal Telegram Bot API client: long-poll
// getUpdates, outbound messages with inline keyboards, callback
// acknowledgement, and a Receiver that owns the polling loop.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.telegram.org"

// ErrConflict marks the 409 returned when a second bot instance polls
// with the same token. Retrying would fight the other instance, so
// callers must treat it as fatal.
var ErrConflict = errors.New("telegram: conflict, another instance is polling")

type apiError struct {
	StatusCode  int
	Description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram http %d: %s", e.StatusCode, e.Description)
}

// IsConflict reports whether err is the second-instance 409 conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

type API struct {
	http    *http.Client
	baseURL string
	token   string

	// Telegram throttles bots around 30 messages per second overall;
	// pace outbound calls so bursts of card listings do not trip it.
	sendLimiter *rate.Limiter
}

func NewAPI(httpClient *http.Client, baseURL, token string) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &API{
		http:        httpClient,
		baseURL:     baseURL,
		token:       token,
		sendLimiter: rate.NewLimiter(rate.Limit(25), 5),
	}
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

func (api *API) call(ctx context.Context, method string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("telegram encode %s: %w", method, err)
		}
		reader = bytes.NewReader(b)
	}
	u := fmt.Sprintf("%s/bot%s/%s", api.baseURL, api.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := api.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %s", ErrConflict, strings.TrimSpace(env.Description))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		desc := strings.TrimSpace(env.Description)
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return &apiError{StatusCode: resp.StatusCode, Description: desc}
	}
	if decodeErr != nil {
		return fmt.Errorf("telegram decode %s: %w", method, decodeErr)
	}
	if !env.OK {
		return fmt.Errorf("telegram %s: ok=false: %s", method, env.Description)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("telegram decode %s result: %w", method, err)
		}
	}
	return nil
}

func (api *API) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := api.call(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// GetUpdates long-polls for updates and returns the next offset to
// acknowledge everything received.
func (api *API) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	var updates []Update
	err := api.call(reqCtx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        secs,
		AllowedUpdates: []string{"message", "edited_message", "callback_query"},
	}, &updates)
	if err != nil {
		return nil, offset, err
	}
	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

// SendOptions controls formatting and the optional choice keyboard on
// an outbound message.
type SendOptions struct {
	ParseMode             string
	DisableWebPagePreview bool
	ReplyMarkup           *InlineKeyboardMarkup
}

type sendMessageRequest struct {
	ChatID                int64                 `json:"chat_id"`
	Text                  string                `json:"text"`
	ParseMode             string                `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (api *API) SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	if err := api.sendLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	var msg Message
	err := api.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             opts.ParseMode,
		DisableWebPagePreview: opts.DisableWebPagePreview,
		ReplyMarkup:           opts.ReplyMarkup,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

type editMessageTextRequest struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (api *API) EditMessageText(ctx context.Context, chatID, messageID int64, text string, opts SendOptions) error {
	if err := api.sendLimiter.Wait(ctx); err != nil {
		return err
	}
	return api.call(ctx, "editMessageText", editMessageTextRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        strings.TrimSpace(text),
		ParseMode:   opts.ParseMode,
		ReplyMarkup: opts.ReplyMarkup,
	}, nil)
}

type answerCallbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

// AnswerCallbackQuery acknowledges a keyboard tap so the client stops
// showing its progress spinner.
func (api *API) AnswerCallbackQuery(ctx context.Context, callbackID, text string, showAlert bool) error {
	return api.call(ctx, "answerCallbackQuery", answerCallbackQueryRequest{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       showAlert,
	}, nil)
}
