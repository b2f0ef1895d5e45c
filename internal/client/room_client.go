package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrRoomNotFound = errors.New("room not found on room server")
)

// RoomClient is a thin client for the room server's admin API. Requests
// are authenticated with short-lived HS256 API tokens signed with the
// server-to-server key pair; this is not end-user token issuance.
type RoomClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	tokenTTL   time.Duration
	httpClient *http.Client
}

// Participant is a live participant as reported by the room server.
type Participant struct {
	SID      string `json:"sid"`
	Identity string `json:"identity"`
	Name     string `json:"name"`
	State    string `json:"state"`
	Metadata string `json:"metadata"`
	JoinedAt int64  `json:"joinedAt"`
}

type listParticipantsResponse struct {
	Participants []Participant `json:"participants"`
}

// videoGrant mirrors the room server's token grant claims.
type videoGrant struct {
	Room      string `json:"room,omitempty"`
	RoomAdmin bool   `json:"roomAdmin,omitempty"`
	RoomList  bool   `json:"roomList,omitempty"`
}

type adminClaims struct {
	jwt.RegisteredClaims
	Video videoGrant `json:"video"`
}

// NewRoomClient creates a new room server admin client.
func NewRoomClient(baseURL, apiKey, apiSecret string, tokenTTL time.Duration) *RoomClient {
	if tokenTTL <= 0 {
		tokenTTL = 10 * time.Minute
	}
	return &RoomClient{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		tokenTTL:  tokenTTL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ListParticipants returns the participants currently connected to a room.
func (c *RoomClient) ListParticipants(ctx context.Context, room string) ([]Participant, error) {
	body, err := c.call(ctx, "ListParticipants", room, map[string]string{"room": room})
	if err != nil {
		return nil, err
	}

	var resp listParticipantsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}
	return resp.Participants, nil
}

// RemoveParticipant disconnects a participant from a room.
func (c *RoomClient) RemoveParticipant(ctx context.Context, room, identity string) error {
	_, err := c.call(ctx, "RemoveParticipant", room, map[string]string{
		"room":     room,
		"identity": identity,
	})
	return err
}

// EndRoom terminates a room. The room server then emits the
// room_finished event that drives finalization.
func (c *RoomClient) EndRoom(ctx context.Context, room string) error {
	_, err := c.call(ctx, "DeleteRoom", room, map[string]string{"room": room})
	return err
}

func (c *RoomClient) call(ctx context.Context, method, room string, payload interface{}) ([]byte, error) {
	token, err := c.adminToken(room)
	if err != nil {
		return nil, fmt.Errorf("failed to sign admin token: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/twirp/livekit.RoomService/%s", c.baseURL, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("room server request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrRoomNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("room server returned status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// adminToken signs a short-lived API token scoped to one room.
func (c *RoomClient) adminToken(room string) (string, error) {
	now := time.Now()
	claims := &adminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.apiKey,
			Subject:   c.apiKey,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.tokenTTL)),
		},
		Video: videoGrant{
			Room:      room,
			RoomAdmin: true,
			RoomList:  true,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.apiSecret))
}
