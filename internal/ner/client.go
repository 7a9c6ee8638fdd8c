package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/clinrag/internal/model"
	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
)

// Client talks to the clinical NER service.
type Client struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:     strings.TrimSpace(url),
		timeout: timeout,
		client:  &http.Client{},
	}
}

type extractRequest struct {
	Text string `json:"text"`
}

type extractResponse struct {
	Text     string          `json:"text"`
	Entities *[]model.Entity `json:"entities"`
}

func (c *Client) Extract(ctx context.Context, noteID string, text string) (*model.NoteEntities, error) {
	if c.url == "" {
		return nil, appErr.NewUpstreamError(appErr.ServiceNER, appErr.UpstreamUnavailable, fmt.Errorf("ner service not configured"))
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	data, err := json.Marshal(extractRequest{Text: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		logutil.GetLogger(ctx).Error("call ner service failed", zap.String("note_id", noteID), zap.Error(err))
		return nil, appErr.Upstream(appErr.ServiceNER, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, appErr.NewUpstreamError(appErr.ServiceNER, appErr.UpstreamUnavailable,
			fmt.Errorf("ner request failed: %s: %s", resp.Status, strings.TrimSpace(string(body))))
	}
	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, appErr.BadResponse(appErr.ServiceNER, "decode ner response: %v", err)
	}
	if out.Entities == nil {
		return nil, appErr.BadResponse(appErr.ServiceNER, "ner response has no entities field")
	}
	size := len(text)
	for i, ent := range *out.Entities {
		if ent.Start < 0 || ent.End < ent.Start || ent.End > size {
			return nil, appErr.BadResponse(appErr.ServiceNER, "entity %d span [%d,%d) outside text of %d bytes", i, ent.Start, ent.End, size)
		}
	}
	return &model.NoteEntities{
		NoteID:   noteID,
		Text:     text,
		Entities: *out.Entities,
	}, nil
}
