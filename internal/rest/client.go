// Package rest is the client for the backend's HTTP surface:
// authentication plus conversation and message CRUD. The backend is a
// black box here; this package only knows its call signatures.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"lichka/internal/models"
)

// FetchError wraps any failed REST call. Callers log it and leave UI
// state unchanged; it never crosses into the rendering layer.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// SetToken installs the session token sent with every subsequent call.
func (c *Client) SetToken(token string) {
	c.token = token
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
}

func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", loginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &FetchError{Op: "login", Err: fmt.Errorf("rejected: %s", resp.Message)}
	}
	return resp.Token, nil
}

type registerRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

func (c *Client) Register(ctx context.Context, username, password, displayName string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/register", registerRequest{
		Username:    username,
		Password:    password,
		DisplayName: displayName,
	}, nil)
}

func (c *Client) GetUserConversations(ctx context.Context, user string) ([]models.Conversation, error) {
	var out []models.Conversation
	path := "/api/conversations?user=" + url.QueryEscape(user)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var out []models.Message
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type startConversationRequest struct {
	UserA string `json:"userA"`
	UserB string `json:"userB"`
}

type startConversationResponse struct {
	ConversationID string `json:"conversationId"`
}

// StartConversation asks the backend for the conversation between two
// users, creating it on first contact.
func (c *Client) StartConversation(ctx context.Context, userA, userB string) (string, error) {
	var resp startConversationResponse
	err := c.do(ctx, http.MethodPost, "/api/conversations", startConversationRequest{UserA: userA, UserB: userB}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ConversationID, nil
}

func (c *Client) SearchUsers(ctx context.Context, currentUser, query string) ([]models.User, error) {
	var out []models.User
	path := "/api/users?current=" + url.QueryEscape(currentUser)
	if query != "" {
		path += "&q=" + url.QueryEscape(query)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MarkMessagesAsRead(ctx context.Context, conversationID, username string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/read?user=" + url.QueryEscape(username)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	op := method + " " + path

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &FetchError{Op: op, Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return &FetchError{Op: op, Err: models.ErrNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &FetchError{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, msg)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &FetchError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}
