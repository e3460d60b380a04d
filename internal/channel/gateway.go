package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPGateway talks to the channel gateway service over HTTP.
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPGateway creates a gateway adapter.
func NewHTTPGateway(baseURL, token string) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *HTTPGateway) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned status %d for %s", resp.StatusCode, path)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// SendText sends a plain text message through the session.
func (g *HTTPGateway) SendText(ctx context.Context, sessionID, to, text string) error {
	return g.post(ctx, "/api/"+sessionID+"/send-text", map[string]string{
		"to":   to,
		"text": text,
	}, nil)
}

// SendFile sends a document attachment.
func (g *HTTPGateway) SendFile(ctx context.Context, sessionID, to, fileURL, caption string) error {
	return g.post(ctx, "/api/"+sessionID+"/send-file", map[string]string{
		"to":      to,
		"url":     fileURL,
		"caption": caption,
	}, nil)
}

// SendImage sends an image attachment.
func (g *HTTPGateway) SendImage(ctx context.Context, sessionID, to, imageURL, caption string) error {
	return g.post(ctx, "/api/"+sessionID+"/send-image", map[string]string{
		"to":      to,
		"url":     imageURL,
		"caption": caption,
	}, nil)
}

// GetStatus returns the session connection state.
func (g *HTTPGateway) GetStatus(ctx context.Context, sessionID string) (SessionStatus, error) {
	var status SessionStatus

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/"+sessionID+"/status", nil)
	if err != nil {
		return status, err
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return status, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return status, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	err = json.NewDecoder(resp.Body).Decode(&status)
	return status, err
}

// StartSession asks the gateway to start the session.
func (g *HTTPGateway) StartSession(ctx context.Context, sessionID string) error {
	return g.post(ctx, "/api/"+sessionID+"/start", map[string]string{}, nil)
}

// Logout tears the session down.
func (g *HTTPGateway) Logout(ctx context.Context, sessionID string) error {
	return g.post(ctx, "/api/"+sessionID+"/logout", map[string]string{}, nil)
}
