// Package config loads the mqspeak INI configuration file into the
// value types defined in internal/model. Parsing is strict: any
// missing section, unparseable integer, unknown type, or half-present
// credential pair is a *ConfigError surfaced once at startup so the
// caller can print one message and exit non-zero.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mqspeak/mqspeak/internal/model"
	"gopkg.in/ini.v1"
)

// DefaultSearchPaths returns the config file search order. An explicit
// path (from the -c flag) is checked first by FindConfig; this list is
// consulted only when no explicit path is given.
func DefaultSearchPaths() []string {
	paths := []string{"mqspeak.conf"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mqspeak", "mqspeak.conf"))
	}

	paths = append(paths, "/etc/mqspeak/mqspeak.conf")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise DefaultSearchPaths is searched in order and the
// first existing path is returned.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// ConfigError reports a problem with the configuration file: a missing
// section or option, an unparseable integer, an unknown type, or a
// half-present credential pair. Every validation failure in this
// package is reported this way so the caller can print one message and
// exit non-zero rather than a raw library error.
type ConfigError struct {
	Section string
	Option  string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Option != "" {
		return fmt.Sprintf("config: [%s] %s: %s", e.Section, e.Option, e.Reason)
	}
	return fmt.Sprintf("config: [%s]: %s", e.Section, e.Reason)
}

func errf(section, option, format string, args ...any) *ConfigError {
	return &ConfigError{Section: section, Option: option, Reason: fmt.Sprintf(format, args...)}
}

// UpdateType selects which Updater state machine a channel uses.
type UpdateType string

const (
	UpdateBlackout UpdateType = "blackout"
	UpdateBuffered UpdateType = "buffered"
	UpdateAverage  UpdateType = "average"
	UpdateOnChange UpdateType = "onchange"
)

// ChannelConfig is a Channel plus the pieces of configuration that only
// matter at wiring time: its UpdateType and the resolved field mapping.
type ChannelConfig struct {
	Channel    model.Channel
	UpdateType UpdateType
	Fields     model.FieldMapping
}

// BrokerConfig is a Broker plus its subscription topic patterns.
type BrokerConfig struct {
	Broker model.Broker
	Topics []string
}

// Config is the fully parsed, validated configuration.
type Config struct {
	Brokers  []BrokerConfig
	Channels []ChannelConfig
}

// BrokerByName returns the broker named name, if any.
func (c Config) BrokerByName(name string) (model.Broker, bool) {
	for _, b := range c.Brokers {
		if b.Broker.Name == name {
			return b.Broker, true
		}
	}
	return model.Broker{}, false
}

// Load parses and validates the INI file at path.
func Load(path string) (*Config, error) {
	file, err := ini.LoadSources(ini.LoadOptions{AllowShadows: false}, path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return build(file)
}

func build(file *ini.File) (*Config, error) {
	brokers, err := parseBrokers(file)
	if err != nil {
		return nil, err
	}

	channels, err := parseChannels(file, brokers)
	if err != nil {
		return nil, err
	}

	return &Config{Brokers: brokers, Channels: channels}, nil
}

func parseBrokers(file *ini.File) ([]BrokerConfig, error) {
	section, err := file.GetSection("Brokers")
	if err != nil {
		return nil, errf("Brokers", "", "section is required")
	}

	names, err := requiredList(section, "Brokers", "Enabled")
	if err != nil {
		return nil, err
	}

	brokers := make([]BrokerConfig, 0, len(names))
	for _, name := range names {
		bc, err := parseBroker(file, name)
		if err != nil {
			return nil, err
		}
		brokers = append(brokers, bc)
	}
	return brokers, nil
}

func parseBroker(file *ini.File, name string) (BrokerConfig, error) {
	section, err := file.GetSection(name)
	if err != nil {
		return BrokerConfig{}, errf(name, "", "referenced in [Brokers] Enabled but section is missing")
	}

	host := section.Key("Host").MustString("127.0.0.1")
	port, err := optionalInt(section, name, "Port", 1883)
	if err != nil {
		return BrokerConfig{}, err
	}

	user := section.Key("User").String()
	password := section.Key("Password").String()
	if (user == "") != (password == "") {
		return BrokerConfig{}, errf(name, "User/Password", "both must be set or both left empty")
	}

	topicRaw := section.Key("Topic").String()
	topics := strings.Fields(topicRaw)
	if len(topics) == 0 {
		return BrokerConfig{}, errf(name, "Topic", "at least one subscription pattern is required")
	}

	return BrokerConfig{
		Broker: model.Broker{Name: name, Host: host, Port: port, User: user, Password: password},
		Topics: topics,
	}, nil
}

func parseChannels(file *ini.File, brokers []BrokerConfig) ([]ChannelConfig, error) {
	section, err := file.GetSection("Channels")
	if err != nil {
		return nil, errf("Channels", "", "section is required")
	}

	names, err := requiredList(section, "Channels", "Enabled")
	if err != nil {
		return nil, err
	}

	brokerNames := make(map[string]struct{}, len(brokers))
	for _, b := range brokers {
		brokerNames[b.Broker.Name] = struct{}{}
	}

	channels := make([]ChannelConfig, 0, len(names))
	for _, name := range names {
		cc, err := parseChannel(file, name, brokerNames)
		if err != nil {
			return nil, err
		}
		channels = append(channels, cc)
	}
	return channels, nil
}

func parseChannel(file *ini.File, name string, brokerNames map[string]struct{}) (ChannelConfig, error) {
	section, err := file.GetSection(name)
	if err != nil {
		return ChannelConfig{}, errf(name, "", "referenced in [Channels] Enabled but section is missing")
	}

	kind, err := parseChannelKind(section, name)
	if err != nil {
		return ChannelConfig{}, err
	}

	key := section.Key("Key").String()
	if key == "" {
		return ChannelConfig{}, errf(name, "Key", "is required")
	}

	channelID := section.Key("Id").String()
	if kind == model.Phant && channelID == "" {
		return ChannelConfig{}, errf(name, "Id", "is required for phant channels")
	}

	updateRateSec, err := requiredInt(section, name, "UpdateRate")
	if err != nil {
		return ChannelConfig{}, err
	}

	updateType, err := parseUpdateType(section, name)
	if err != nil {
		return ChannelConfig{}, err
	}

	fieldsSectionName := section.Key("UpdateFields").String()
	if fieldsSectionName == "" {
		return ChannelConfig{}, errf(name, "UpdateFields", "is required")
	}
	fields, err := parseFieldMapping(file, name, fieldsSectionName, brokerNames)
	if err != nil {
		return ChannelConfig{}, err
	}
	if kind == model.ThingSpeak && len(fields) > model.MaxThingSpeakFields {
		return ChannelConfig{}, errf(fieldsSectionName, "", "thingspeak channels accept at most %d fields, got %d",
			model.MaxThingSpeakFields, len(fields))
	}

	hasWaiting := section.HasKey("WaitInterval")
	var waiting time.Duration
	if hasWaiting {
		waitSec, err := requiredInt(section, name, "WaitInterval")
		if err != nil {
			return ChannelConfig{}, err
		}
		waiting = time.Duration(waitSec) * time.Second
	}

	channel := model.Channel{
		Kind:           kind,
		Name:           name,
		APIKey:         key,
		ChannelID:      channelID,
		HasWaiting:     hasWaiting,
		Waiting:        waiting,
		UpdateInterval: time.Duration(updateRateSec) * time.Second,
	}

	return ChannelConfig{Channel: channel, UpdateType: updateType, Fields: fields}, nil
}

func parseChannelKind(section *ini.Section, name string) (model.ChannelKind, error) {
	raw := strings.ToLower(strings.TrimSpace(section.Key("Type").String()))
	switch model.ChannelKind(raw) {
	case model.ThingSpeak:
		return model.ThingSpeak, nil
	case model.Phant:
		return model.Phant, nil
	default:
		return "", errf(name, "Type", "unknown channel type %q (want thingspeak or phant)", raw)
	}
}

func parseUpdateType(section *ini.Section, name string) (UpdateType, error) {
	raw := strings.ToLower(strings.TrimSpace(section.Key("UpdateType").String()))
	switch UpdateType(raw) {
	case UpdateBlackout, UpdateBuffered, UpdateAverage, UpdateOnChange:
		return UpdateType(raw), nil
	default:
		return "", errf(name, "UpdateType", "unknown update type %q (want blackout, buffered, average, or onchange)", raw)
	}
}

func parseFieldMapping(file *ini.File, channelName, sectionName string, brokerNames map[string]struct{}) (model.FieldMapping, error) {
	section, err := file.GetSection(sectionName)
	if err != nil {
		return nil, errf(channelName, "UpdateFields", "referenced section %q is missing", sectionName)
	}

	keys := section.Keys()
	if len(keys) == 0 {
		return nil, errf(sectionName, "", "must declare at least one field")
	}

	mapping := make(model.FieldMapping, len(keys))
	for _, k := range keys {
		fieldName := k.Name()
		parts := strings.Fields(k.String())
		if len(parts) != 2 {
			return nil, errf(sectionName, fieldName, "expected \"brokerName topicPath\", got %q", k.String())
		}
		brokerName, topic := parts[0], parts[1]
		if _, ok := brokerNames[brokerName]; !ok {
			return nil, errf(sectionName, fieldName, "references unknown broker %q", brokerName)
		}
		mapping[model.DataIdentifier{Broker: brokerName, Topic: topic}] = fieldName
	}
	return mapping, nil
}

func requiredList(section *ini.Section, sectionName, key string) ([]string, error) {
	raw := section.Key(key).String()
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, errf(sectionName, key, "must list at least one name")
	}
	return fields, nil
}

func requiredInt(section *ini.Section, sectionName, key string) (int, error) {
	raw := section.Key(key).String()
	if raw == "" {
		return 0, errf(sectionName, key, "is required")
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, errf(sectionName, key, "must be an integer, got %q", raw)
	}
	return v, nil
}

func optionalInt(section *ini.Section, sectionName, key string, fallback int) (int, error) {
	if !section.HasKey(key) {
		return fallback, nil
	}
	return requiredInt(section, sectionName, key)
}
