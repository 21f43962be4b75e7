// Package roomapi calls the room existence endpoints of a room server.
package roomapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrUnexpectedStatus = errors.New("unexpected status")

// StateResponse answers GET /api/guess-draw/rooms/{id}/state.
type StateResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// RoomResponse answers GET /api/color-clash/rooms/{id}.
type RoomResponse struct {
	Success bool            `json:"success"`
	Room    json.RawMessage `json:"room,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Room is a whiteboard room.
type Room struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Client struct {
	base   string
	client *http.Client
}

// New returns a client for the server at baseURL. A nil httpClient means
// http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), client: httpClient}
}

func (c *Client) GetRoomState(ctx context.Context, roomID string) (*StateResponse, error) {
	var out StateResponse
	if _, err := c.get(ctx, "/api/guess-draw/rooms/"+url.PathEscape(roomID)+"/state", &out, http.StatusNotFound); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetColorClashRoom(ctx context.Context, roomID string) (*RoomResponse, error) {
	var out RoomResponse
	if _, err := c.get(ctx, "/api/color-clash/rooms/"+url.PathEscape(roomID), &out, http.StatusNotFound); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetWhiteboardRoom returns nil, nil when the room does not exist.
func (c *Client) GetWhiteboardRoom(ctx context.Context, roomID string) (*Room, error) {
	var out Room
	status, err := c.get(ctx, "/api/whiteboard/rooms/"+url.PathEscape(roomID), &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	return &out, nil
}

// get decodes a 200 body into out. Statuses listed in decodeAlso are decoded
// too; a 404 not listed there is returned with an untouched out.
func (c *Client) get(ctx context.Context, path string, out any, decodeAlso ...int) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	decode := resp.StatusCode == http.StatusOK
	for _, s := range decodeAlso {
		decode = decode || resp.StatusCode == s
	}
	switch {
	case decode:
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, nil
	default:
		return resp.StatusCode, fmt.Errorf("%w: get %s returned %s", ErrUnexpectedStatus, path, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
	}
	return resp.StatusCode, nil
}
