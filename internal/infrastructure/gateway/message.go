package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendMediaRequest struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	MimeType  string `json:"mimetype,omitempty"`
	Caption   string `json:"caption,omitempty"`
	Media     string `json:"media"`
	FileName  string `json:"fileName,omitempty"`
}

type sendResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	Status string `json:"status"`
}

// SendText sends a plain text message through an instance and returns the
// gateway message id.
func (c *Client) SendText(ctx context.Context, instanceName, token, number, text string) (string, error) {
	path := fmt.Sprintf("/message/sendText/%s", instanceName)

	body, err := c.do(ctx, http.MethodPost, path, token, sendTextRequest{Number: number, Text: text})
	if err != nil {
		return "", fmt.Errorf("sendText failed for %s: %w", instanceName, err)
	}

	var resp sendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("malformed sendText response: %w", err)
	}
	return resp.Key.ID, nil
}

// MediaMessage describes a media payload for SendMedia. Media is a URL or
// base64 data.
type MediaMessage struct {
	Number    string
	MediaType string
	MimeType  string
	Caption   string
	Media     string
	FileName  string
}

// SendMedia sends a media message through an instance.
func (c *Client) SendMedia(ctx context.Context, instanceName, token string, msg MediaMessage) (string, error) {
	path := fmt.Sprintf("/message/sendMedia/%s", instanceName)

	req := sendMediaRequest{
		Number:    msg.Number,
		MediaType: msg.MediaType,
		MimeType:  msg.MimeType,
		Caption:   msg.Caption,
		Media:     msg.Media,
		FileName:  msg.FileName,
	}

	body, err := c.do(ctx, http.MethodPost, path, token, req)
	if err != nil {
		return "", fmt.Errorf("sendMedia failed for %s: %w", instanceName, err)
	}

	var resp sendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("malformed sendMedia response: %w", err)
	}
	return resp.Key.ID, nil
}
