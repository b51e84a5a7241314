// Package trello is a minimal Trello REST API client covering the
// board/list/card surface the bot needs. One Client is constructed
// per credential pair; the creds package caches and reuses them.
package trello

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.trello.com"

var (
	ErrUnauthorized = errors.New("trello: invalid key or token")
	ErrNotFound     = errors.New("trello: resource not found")
)

type Client struct {
	http    *http.Client
	baseURL string
	key     string
	token   string
}

func NewClient(httpClient *http.Client, baseURL, key, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		key:     strings.TrimSpace(key),
		token:   strings.TrimSpace(token),
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("key", c.key)
	query.Set("token", c.token)

	u := c.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("trello http %d: %s %s: %s", resp.StatusCode, method, path, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("trello decode %s: %w", path, err)
	}
	return nil
}

// Me resolves the account the credential pair belongs to. Used both
// for credential validation and as a lightweight liveness probe.
func (c *Client) Me(ctx context.Context) (*Member, error) {
	var m Member
	if err := c.do(ctx, http.MethodGet, "/1/members/me", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) ListBoards(ctx context.Context) ([]Board, error) {
	q := url.Values{}
	q.Set("filter", "open")
	q.Set("fields", "name,closed,url")
	var boards []Board
	if err := c.do(ctx, http.MethodGet, "/1/members/me/boards", q, &boards); err != nil {
		return nil, err
	}
	return boards, nil
}

func (c *Client) ListLists(ctx context.Context, boardID string) ([]List, error) {
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		return nil, fmt.Errorf("trello: missing board id")
	}
	q := url.Values{}
	q.Set("filter", "open")
	var lists []List
	if err := c.do(ctx, http.MethodGet, "/1/boards/"+url.PathEscape(boardID)+"/lists", q, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

func (c *Client) ListCards(ctx context.Context, listID string, includeCompleted bool) ([]Card, error) {
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return nil, fmt.Errorf("trello: missing list id")
	}
	q := url.Values{}
	if includeCompleted {
		q.Set("filter", "all")
	} else {
		q.Set("filter", "open")
	}
	var cards []Card
	if err := c.do(ctx, http.MethodGet, "/1/lists/"+url.PathEscape(listID)+"/cards", q, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func (c *Client) GetCard(ctx context.Context, cardID string) (*Card, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return nil, fmt.Errorf("trello: missing card id")
	}
	var card Card
	if err := c.do(ctx, http.MethodGet, "/1/cards/"+url.PathEscape(cardID), nil, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

func (c *Client) CreateCard(ctx context.Context, listID, title, desc string) (*Card, error) {
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return nil, fmt.Errorf("trello: missing list id")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("trello: missing card title")
	}
	q := url.Values{}
	q.Set("idList", listID)
	q.Set("name", title)
	if strings.TrimSpace(desc) != "" {
		q.Set("desc", desc)
	}
	q.Set("pos", "top")
	var card Card
	if err := c.do(ctx, http.MethodPost, "/1/cards", q, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// ArchiveCard closes a card, which is how the bot marks it done.
func (c *Client) ArchiveCard(ctx context.Context, cardID string) error {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return fmt.Errorf("trello: missing card id")
	}
	q := url.Values{}
	q.Set("value", "true")
	return c.do(ctx, http.MethodPut, "/1/cards/"+url.PathEscape(cardID)+"/closed", q, nil)
}

type searchResponse struct {
	Cards []Card `json:"cards"`
}

func (c *Client) SearchCards(ctx context.Context, boardID, query string) ([]Card, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("trello: missing search query")
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("modelTypes", "cards")
	q.Set("card_fields", "name,desc,closed,idList,idBoard,shortUrl")
	if boardID = strings.TrimSpace(boardID); boardID != "" {
		q.Set("idBoards", boardID)
	}
	var out searchResponse
	if err := c.do(ctx, http.MethodGet, "/1/search", q, &out); err != nil {
		return nil, err
	}
	return out.Cards, nil
}

// ValidateCredential checks a key/token pair with one round trip. A
// 401 maps to Valid=false with a reason; transport failures are
// returned as errors so callers can tell "bad pair" from "cannot
// reach Trello".
func ValidateCredential(ctx context.Context, httpClient *http.Client, baseURL, key, token string) (ValidationResult, error) {
	if strings.TrimSpace(key) == "" || strings.TrimSpace(token) == "" {
		return ValidationResult{Valid: false, Reason: "empty key or token"}, nil
	}
	client := NewClient(httpClient, baseURL, key, token)
	me, err := client.Me(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return ValidationResult{Valid: false, Reason: "key/token rejected by Trello"}, nil
		}
		return ValidationResult{}, err
	}
	label := strings.TrimSpace(me.FullName)
	if label == "" {
		label = strings.TrimSpace(me.Username)
	}
	return ValidationResult{Valid: true, AccountLabel: label}, nil
}
