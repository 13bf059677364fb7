package sender

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mqspeak/mqspeak/internal/model"
)

const thingSpeakUpdateURL = "https://api.thingspeak.com/update"

// ThingSpeak posts a measurement to ThingSpeak's update endpoint. A send
// only counts as successful when ThingSpeak's response body parses as
// an integer greater than zero: ThingSpeak responds "0" when it drops
// the write for being too frequent, which this sender must treat as a
// failure even though the HTTP status is 200.
type ThingSpeak struct {
	client *http.Client
}

// NewThingSpeak builds a ThingSpeak sender that issues requests through
// client.
func NewThingSpeak(client *http.Client) *ThingSpeak {
	return &ThingSpeak{client: client}
}

func (s *ThingSpeak) Send(ctx context.Context, channel model.Channel, mapping model.FieldMapping, measurement model.Measurement) model.UpdateResult {
	return sendThingSpeak(ctx, s.client, thingSpeakUpdateURL, channel, mapping, measurement)
}

// sendThingSpeak is Send's body with the target URL as a parameter, so
// tests can point it at an httptest.Server instead of the production
// endpoint.
func sendThingSpeak(ctx context.Context, client *http.Client, target string, channel model.Channel, mapping model.FieldMapping, measurement model.Measurement) model.UpdateResult {
	form := url.Values{}
	for id, fieldName := range mapping {
		if v, ok := measurement.Fields[id]; ok {
			form.Set(fieldName, v)
		}
	}
	form.Set("created_at", measurement.Time.Format("2006-01-02 15:04:05"))
	form.Set("api_key", channel.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return model.UpdateResult{Success: false, Err: fmt.Errorf("thingspeak: build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return model.UpdateResult{Success: false, Err: fmt.Errorf("thingspeak: %w", err)}
	}

	status := resp.StatusCode
	body := ReadErrorBody(resp.Body, 4096)

	if status != http.StatusOK {
		return model.UpdateResult{Success: false, Err: fmt.Errorf("thingspeak: unexpected status %d", status)}
	}

	entryID, err := strconv.Atoi(decodeBody([]byte(body)))
	if err != nil || entryID <= 0 {
		return model.UpdateResult{Success: false, Err: fmt.Errorf("thingspeak: response %q is not a positive entry id", body)}
	}

	return model.UpdateResult{Success: true}
}
