// Package history implements the HTTP client for the external history
// boundary: initial conversation/message retrieval and read-receipt
// persistence. The sync core treats it as an opaque collaborator.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eldtechnologies/convosync/internal/models"
)

// Client is a history API client.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a client for the given base URL and bearer credential.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// doRequest performs an HTTP request against the history API.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("history API error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// conversationDTO mirrors the API conversation record.
type conversationDTO struct {
	ID           int64          `json:"id"`
	ParticipantA models.UserRef `json:"participantA"`
	ParticipantB models.UserRef `json:"participantB"`
}

// messageDTO mirrors the API message record. SentAt is ISO-8601.
type messageDTO struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversationId"`
	SenderID       int64  `json:"senderId"`
	SenderName     string `json:"senderDisplayName"`
	Text           string `json:"text"`
	SentAt         string `json:"sentAt"`
	IsRead         bool   `json:"isRead"`
}

// Conversations retrieves the conversation list for the current session.
func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	respBody, err := c.doRequest(ctx, "GET", "/conversations", nil)
	if err != nil {
		return nil, err
	}

	var dtos []conversationDTO
	if err := json.Unmarshal(respBody, &dtos); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}

	conversations := make([]models.Conversation, len(dtos))
	for i, d := range dtos {
		conversations[i] = models.Conversation{
			ID:           d.ID,
			ParticipantA: d.ParticipantA,
			ParticipantB: d.ParticipantB,
		}
	}
	return conversations, nil
}

// Messages retrieves one conversation's messages in append order.
func (c *Client) Messages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	respBody, err := c.doRequest(ctx, "GET", fmt.Sprintf("/conversations/%d/messages", conversationID), nil)
	if err != nil {
		return nil, err
	}

	var dtos []messageDTO
	if err := json.Unmarshal(respBody, &dtos); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	messages := make([]models.Message, len(dtos))
	for i, d := range dtos {
		sentAt, err := time.Parse(time.RFC3339, d.SentAt)
		if err != nil {
			// A message without a parseable timestamp still has to show up;
			// keep it with the zero time rather than dropping history.
			sentAt = time.Time{}
		}
		messages[i] = models.Message{
			ID:             d.ID,
			ConversationID: d.ConversationID,
			SenderID:       d.SenderID,
			SenderName:     d.SenderName,
			Text:           d.Text,
			SentAt:         sentAt,
			Read:           d.IsRead,
		}
	}
	return messages, nil
}

// persistReadRequest is the request body for read-receipt persistence.
type persistReadRequest struct {
	MessageIDs []int64 `json:"messageIds"`
}

// PersistRead records read receipts server-side. The core's own mark-read is
// local-only; callers invoke this separately after selecting a conversation.
// Provisional (negative) ids are filtered out, the server never saw them.
func (c *Client) PersistRead(ctx context.Context, messageIDs []int64) error {
	serverIDs := make([]int64, 0, len(messageIDs))
	for _, id := range messageIDs {
		if id > 0 {
			serverIDs = append(serverIDs, id)
		}
	}
	if len(serverIDs) == 0 {
		return nil
	}

	body, _ := json.Marshal(persistReadRequest{MessageIDs: serverIDs})
	_, err := c.doRequest(ctx, "POST", "/messages/read", body)
	return err
}
