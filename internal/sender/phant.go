package sender

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mqspeak/mqspeak/internal/model"
)

const phantBaseURL = "http://data.sparkfun.com"

// Phant posts a measurement to a Phant stream's input endpoint. Unlike
// ThingSpeak, success is purely a function of HTTP status: Phant has no
// response-body convention for rejecting a write while still returning
// 200.
type Phant struct {
	client  *http.Client
	baseURL string
}

// NewPhant builds a Phant sender targeting the public data.sparkfun.com
// endpoint and issuing requests through client.
func NewPhant(client *http.Client) *Phant {
	return &Phant{client: client, baseURL: phantBaseURL}
}

// NewPhantWithBaseURL builds a Phant sender against a self-hosted Phant
// instance (or, in tests, an httptest.Server) instead of the public
// endpoint.
func NewPhantWithBaseURL(client *http.Client, baseURL string) *Phant {
	return &Phant{client: client, baseURL: baseURL}
}

func (s *Phant) Send(ctx context.Context, channel model.Channel, mapping model.FieldMapping, measurement model.Measurement) model.UpdateResult {
	form := url.Values{}
	for id, fieldName := range mapping {
		if v, ok := measurement.Fields[id]; ok {
			form.Set(fieldName, v)
		}
	}

	target := fmt.Sprintf("%s/input/%s", s.baseURL, channel.ChannelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return model.UpdateResult{Success: false, Err: fmt.Errorf("phant: build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Phant-Private-Key", channel.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return model.UpdateResult{Success: false, Err: fmt.Errorf("phant: %w", err)}
	}

	status := resp.StatusCode
	body := ReadErrorBody(resp.Body, 4096)

	if status != http.StatusOK {
		return model.UpdateResult{Success: false, Err: fmt.Errorf("phant: unexpected status %d: %s", status, decodeBody([]byte(body)))}
	}

	return model.UpdateResult{Success: true}
}
