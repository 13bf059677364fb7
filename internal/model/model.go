// Package model holds the value types shared across the update pipeline:
// brokers, channels, the (broker, topic) data identifier, field mappings,
// and the measurement snapshots that flow from an Update Buffer to a
// Sender. None of these types carry behavior beyond small predicates —
// the stateful machinery lives in internal/buffer and internal/updater.
package model

import (
	"fmt"
	"time"
)

// Broker identifies one configured MQTT endpoint. Brokers are created
// once from config and never mutated afterward.
type Broker struct {
	Name     string
	Host     string
	Port     int
	User     string
	Password string
}

// AuthRequired reports whether this broker was configured with
// credentials. Config validation guarantees User and Password are either
// both set or both empty.
func (b Broker) AuthRequired() bool {
	return b.User != "" && b.Password != ""
}

func (b Broker) String() string {
	return fmt.Sprintf("%s (%s:%d)", b.Name, b.Host, b.Port)
}

// DataIdentifier is the (broker, topic) pair identifying a single stream
// of incoming values. It is comparable and usable as a map key so it can
// serve as the declared-field key in an Update Buffer.
type DataIdentifier struct {
	Broker string
	Topic  string
}

func (d DataIdentifier) String() string {
	return fmt.Sprintf("<%s: %s>", d.Broker, d.Topic)
}

// ChannelKind selects which cloud service a Channel targets, and in turn
// which Sender implementation and wire format apply.
type ChannelKind string

const (
	ThingSpeak ChannelKind = "thingspeak"
	Phant      ChannelKind = "phant"
)

// MaxThingSpeakFields is the maximum number of fields ThingSpeak accepts
// in a single update request.
const MaxThingSpeakFields = 8

// Channel is an outbound destination at a cloud service. Channels are
// immutable once built from config; the FieldMapping for a channel is
// looked up alongside it rather than embedded, so the same Channel value
// stays small and comparable.
type Channel struct {
	Kind ChannelKind
	Name string

	// APIKey is ThingSpeak's write key or Phant's private key, depending
	// on Kind.
	APIKey string

	// ChannelID is required for Phant (the {channel.channelID} path
	// segment) and unused for ThingSpeak.
	ChannelID string

	// HasWaiting reports whether Waiting was configured. A zero Waiting
	// with HasWaiting=false means "no waiting grace period" and is
	// distinct from an explicit WaitInterval=0.
	HasWaiting bool
	Waiting    time.Duration

	UpdateInterval time.Duration
}

func (c Channel) String() string {
	return fmt.Sprintf("<%s[%s]>", c.Name, c.Kind)
}

// FieldMapping maps a DataIdentifier to the field name the cloud service
// expects (e.g. "field1" for ThingSpeak, or an arbitrary name for Phant).
// It is immutable per channel once config is loaded.
type FieldMapping map[DataIdentifier]string

// DeclaredIdentifiers returns the set of DataIdentifiers this mapping
// covers, in map order (order is not significant to callers).
func (m FieldMapping) DeclaredIdentifiers() []DataIdentifier {
	ids := make([]DataIdentifier, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}

// Measurement is a snapshot of field values ready to send to one
// Channel: a mapping from DataIdentifier to its (already string-decoded)
// value plus the time the snapshot was taken.
type Measurement struct {
	Fields map[DataIdentifier]string
	Time   time.Time
}

// NewMeasurement builds a Measurement stamped with the current time.
func NewMeasurement(fields map[DataIdentifier]string) Measurement {
	return Measurement{Fields: fields, Time: time.Now()}
}

// Len returns the number of fields in the measurement.
func (m Measurement) Len() int {
	return len(m.Fields)
}

// UpdateResult is the outcome of one HTTP send attempt, reported back to
// the originating Updater by the Dispatcher.
type UpdateResult struct {
	Success bool
	Err     error
}
