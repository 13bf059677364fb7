// Command mqspeak bridges MQTT telemetry to ThingSpeak and Phant cloud
// channels: one Receiver subscribes per configured broker, a Supervisor
// fans incoming values out to per-channel Updaters, and a Dispatcher's
// worker pool sends the emissions the Updaters produce.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	"github.com/mqspeak/mqspeak/internal/buffer"
	"github.com/mqspeak/mqspeak/internal/buildinfo"
	"github.com/mqspeak/mqspeak/internal/config"
	"github.com/mqspeak/mqspeak/internal/dispatcher"
	"github.com/mqspeak/mqspeak/internal/logging"
	"github.com/mqspeak/mqspeak/internal/metrics"
	"github.com/mqspeak/mqspeak/internal/model"
	"github.com/mqspeak/mqspeak/internal/receiver"
	"github.com/mqspeak/mqspeak/internal/sender"
	"github.com/mqspeak/mqspeak/internal/supervisor"
	"github.com/mqspeak/mqspeak/internal/updater"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	app          = kingpin.New("mqspeak", "MQTT to ThingSpeak/Phant telemetry bridge.")
	configPath   = app.Flag("config", "Path to the mqspeak.conf INI file.").Short('c').String()
	verbose      = app.Flag("verbose", "Log at info level instead of error level.").Short('v').Bool()
	logStdout    = app.Flag("log-stdout", "Log to stdout instead of syslog.").Short('o').Bool()
	metricsAddr  = app.Flag("metrics-addr", "Address to serve /metrics on. Empty disables it.").Default(":9641").String()
	dispatchPool = app.Flag("dispatch-workers", "Concurrent senders in the dispatcher's worker pool.").Default("4").Int()
	queueDepth   = app.Flag("dispatch-queue", "Maximum pending emissions before back-pressure applies.").Default("64").Int()
)

func main() {
	app.Version(buildinfo.String())
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log := logging.New(logging.Options{Verbose: *verbose, Stdout: *logStdout})

	path, err := config.FindConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("configuration not found")
		os.Exit(1)
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	log.WithField("instance", instanceID).WithField("brokers", len(cfg.Brokers)).
		WithField("channels", len(cfg.Channels)).Info("starting mqspeak")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("mqspeak exited with an error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	httpClient := sender.NewClient()
	senders := sender.NewRegistry(httpClient)

	fieldsByChannel := make(map[string]model.FieldMapping, len(cfg.Channels))
	for _, cc := range cfg.Channels {
		fieldsByChannel[cc.Channel.Name] = cc.Fields
	}
	lookupFields := func(channel model.Channel) (model.FieldMapping, bool) {
		m, ok := fieldsByChannel[channel.Name]
		return m, ok
	}

	disp := dispatcher.New(senders, lookupFields, *dispatchPool, *queueDepth, log.WithField("component", "dispatcher")).
		WithRecorder(met)
	defer disp.Stop()

	updaters := make([]updater.Updater, 0, len(cfg.Channels))
	for _, cc := range cfg.Channels {
		u, err := buildUpdater(cc, disp, log)
		if err != nil {
			return fmt.Errorf("channel %s: %w", cc.Channel.Name, err)
		}
		updaters = append(updaters, u)
	}

	sup := supervisor.New(updaters, log.WithField("component", "supervisor"))

	receivers := make([]*receiver.Receiver, 0, len(cfg.Brokers))
	for _, bc := range cfg.Brokers {
		r := receiver.New(bc.Broker, bc.Topics, sup, log.WithField("broker", bc.Broker.Name)).
			WithRecorder(met)
		receivers = append(receivers, r)
	}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		sup.Run()
		return nil
	})

	for _, r := range receivers {
		r := r
		group.Go(func() error {
			return r.Start(gctx)
		})
	}

	if *metricsAddr != "" {
		srv := metrics.NewServer(*metricsAddr, reg)
		group.Go(func() error {
			return srv.Run(gctx)
		})
	}

	<-gctx.Done()
	sup.Stop()

	return group.Wait()
}

// buildUpdater constructs the Update Buffer and Updater state machine a
// channel's configuration selects.
func buildUpdater(cc config.ChannelConfig, disp updater.Dispatcher, log *logrus.Logger) (updater.Updater, error) {
	ids := cc.Fields.DeclaredIdentifiers()
	entry := log.WithField("channel", cc.Channel.Name)

	switch cc.UpdateType {
	case config.UpdateBlackout:
		return updater.NewBlackout(cc.Channel, buffer.NewLastValue(ids), disp, entry), nil
	case config.UpdateBuffered:
		return updater.NewBuffered(cc.Channel, buffer.NewLastValue(ids), disp, entry), nil
	case config.UpdateAverage:
		return updater.NewAverage(cc.Channel, buffer.NewAverage(ids), disp, entry), nil
	case config.UpdateOnChange:
		return updater.NewOnChange(cc.Channel, buffer.NewChangeValue(ids), disp, entry), nil
	default:
		return nil, fmt.Errorf("unknown update type %q", cc.UpdateType)
	}
}

// instanceID is a process-unique tag included in diagnostic output so
// multiple mqspeak instances can be told apart in shared logs.
var instanceID = uuid.NewString()
