// Package receiver owns one MQTT subscription per configured broker.
// Each Receiver is independent: a stall or disconnect on one broker
// never blocks delivery from another, since autopaho's connection
// manager runs its own reconnect loop per Receiver.
package receiver

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/mqspeak/mqspeak/internal/model"
	"github.com/mqspeak/mqspeak/internal/supervisor"
	"github.com/sirupsen/logrus"
)

// Sink receives decoded-or-raw events fanned out by a Receiver. It is
// satisfied by *supervisor.Supervisor.
type Sink interface {
	Offer(event supervisor.Event)
}

// Recorder observes messages as they arrive. It is satisfied by
// *metrics.Metrics.
type Recorder interface {
	RecordMessageReceived(broker string)
}

// Receiver manages one broker connection and delivers every message
// received on its configured subscriptions to a Sink.
type Receiver struct {
	broker  model.Broker
	topics  []string
	sink    Sink
	log     *logrus.Entry
	metrics Recorder

	cm *autopaho.ConnectionManager
}

// New builds a Receiver for broker, subscribing to topics once
// started.
func New(broker model.Broker, topics []string, sink Sink, log *logrus.Entry) *Receiver {
	return &Receiver{broker: broker, topics: topics, sink: sink, log: log}
}

// WithRecorder attaches a Recorder for message-received counts. Returns
// r for chaining at construction time.
func (r *Receiver) WithRecorder(rec Recorder) *Receiver {
	r.metrics = rec
	return r
}

// Start connects to the broker and blocks until ctx is cancelled. It
// returns early only if the connection manager cannot be created; an
// initial connection that does not come up within 30 s is logged and
// left to autopaho's background reconnects. Reconnects and resubscribes
// are handled by autopaho in the background; Start does not return just
// because the broker is briefly unreachable.
func (r *Receiver) Start(ctx context.Context) error {
	brokerURL := &url.URL{
		Scheme: "tcp",
		Host:   r.broker.Host + ":" + strconv.Itoa(r.broker.Port),
	}

	subs := make([]paho.SubscribeOptions, 0, len(r.topics))
	for _, t := range r.topics {
		subs = append(subs, paho.SubscribeOptions{Topic: t, QoS: 0})
	}

	cfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{brokerURL},
		KeepAlive:  30,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			r.log.WithField("broker", r.broker.Name).Info("connected to broker")
			subCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := cm.Subscribe(subCtx, &paho.Subscribe{Subscriptions: subs}); err != nil {
				r.log.WithError(err).WithField("broker", r.broker.Name).Error("subscribe failed")
			}
		},
		OnConnectError: func(err error) {
			r.log.WithError(err).WithField("broker", r.broker.Name).Warn("connection error")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "mqspeak-" + r.broker.Name,
		},
	}

	if r.broker.AuthRequired() {
		cfg.ConnectUsername = r.broker.User
		cfg.ConnectPassword = []byte(r.broker.Password)
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("receiver %s: connect: %w", r.broker.Name, err)
	}
	r.cm = cm

	cm.AddOnPublishReceived(r.onPublishReceived)

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		r.log.WithError(err).WithField("broker", r.broker.Name).
			Warn("initial connection timed out, retrying in background")
	}

	<-ctx.Done()
	return nil
}

// onPublishReceived hands a raw payload to the sink. A panic in the
// sink (or anything it calls synchronously) is caught so one bad
// message can never take down the receive loop.
func (r *Receiver) onPublishReceived(pr autopaho.PublishReceived) (bool, error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("broker", r.broker.Name).
				WithField("topic", pr.Packet.Topic).
				Errorf("message handler panicked: %v", rec)
		}
	}()

	if r.metrics != nil {
		r.metrics.RecordMessageReceived(r.broker.Name)
	}

	r.sink.Offer(supervisor.Event{
		ID: model.DataIdentifier{
			Broker: r.broker.Name,
			Topic:  pr.Packet.Topic,
		},
		Payload: pr.Packet.Payload,
	})
	return true, nil
}

// Stop disconnects from the broker. Safe to call even if Start never
// established a connection.
func (r *Receiver) Stop(ctx context.Context) error {
	if r.cm == nil {
		return nil
	}
	return r.cm.Disconnect(ctx)
}
