// Package sender implements the HTTP delivery contracts for the two
// supported cloud services, ThingSpeak and Phant. Both share the same
// skeleton (build a form body from the channel's field mapping, POST
// with a bounded timeout, read and trim the response) but have
// bit-exact, independent success criteria, so each gets its own type
// rather than a single parameterized sender.
package sender

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/mqspeak/mqspeak/internal/model"
)

// Sender delivers one Measurement to one Channel and reports the
// outcome. Implementations must treat ctx as the deadline for the
// entire round trip, including connect and response read.
type Sender interface {
	Send(ctx context.Context, channel model.Channel, mapping model.FieldMapping, measurement model.Measurement) model.UpdateResult
}

// Registry selects a Sender by channel kind.
type Registry map[model.ChannelKind]Sender

// NewRegistry builds the standard registry wired to client for outbound
// requests.
func NewRegistry(client *http.Client) Registry {
	return Registry{
		model.ThingSpeak: NewThingSpeak(client),
		model.Phant:      NewPhant(client),
	}
}

// For looks up the Sender for kind. The Dispatcher treats a missing
// entry as a configuration invariant violation (channels are validated
// against the same ChannelKind set at config load time).
func (r Registry) For(kind model.ChannelKind) (Sender, bool) {
	s, ok := r[kind]
	return s, ok
}

const decodeErrorPlaceholder = "<Decode error>"

// decodeBody renders an HTTP response body as a UTF-8, trimmed string,
// substituting a placeholder on decode failure per the shared sender
// contract.
func decodeBody(body []byte) string {
	if !utf8.Valid(body) {
		return decodeErrorPlaceholder
	}
	return strings.TrimSpace(string(body))
}
