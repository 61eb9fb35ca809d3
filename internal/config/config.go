// Package config loads the node configuration: YAML overlaid on defaults,
// then checked against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/peersync/internal/heartbeat"
	"github.com/roach88/peersync/internal/reconnect"
	"github.com/roach88/peersync/internal/room"
	"github.com/roach88/peersync/internal/session"
)

//go:embed schema.cue
var schemaCUE string

// Transport kinds.
const (
	TransportMemory    = "memory"
	TransportWebsocket = "websocket"
)

// Config is the full node configuration.
type Config struct {
	Heartbeat   HeartbeatConfig `yaml:"heartbeat"`
	Reconnect   ReconnectConfig `yaml:"reconnect"`
	OpenTimeout time.Duration   `yaml:"open_timeout"`
	Pending     PendingConfig   `yaml:"pending"`
	Room        RoomConfig      `yaml:"room"`
	Transport   TransportConfig `yaml:"transport"`
	Storage     StorageConfig   `yaml:"storage"`
	Notify      NotifyConfig    `yaml:"notify"`
}

type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ReconnectConfig struct {
	Base        time.Duration `yaml:"base"`
	Max         time.Duration `yaml:"max"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type PendingConfig struct {
	// Coalesce keeps only the latest queued snapshot instead of all of them.
	Coalesce bool `yaml:"coalesce"`
}

type RoomConfig struct {
	HostPrefix string `yaml:"host_prefix"`
}

type TransportConfig struct {
	Kind          string        `yaml:"kind"`
	Listen        string        `yaml:"listen"`
	Service       string        `yaml:"service"`
	Domain        string        `yaml:"domain"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
}

type StorageConfig struct {
	SessionDB  string `yaml:"session_db"`
	DocumentDB string `yaml:"document_db"`
}

// NotifyConfig enables publishing notifications to Redis when RedisAddr is set.
type NotifyConfig struct {
	RedisAddr    string `yaml:"redis_addr"`
	RedisChannel string `yaml:"redis_channel"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Heartbeat: HeartbeatConfig{
			Interval: heartbeat.DefaultInterval,
			Timeout:  heartbeat.DefaultTimeout,
		},
		Reconnect: ReconnectConfig{
			Base:        reconnect.DefaultBase,
			Max:         reconnect.DefaultMax,
			MaxAttempts: reconnect.DefaultMaxAttempts,
		},
		OpenTimeout: 15 * time.Second,
		Room:        RoomConfig{HostPrefix: room.DefaultHostPrefix},
		Transport: TransportConfig{
			Kind:          TransportWebsocket,
			Listen:        ":0",
			Service:       "_peersync._tcp",
			Domain:        "local.",
			LookupTimeout: 3 * time.Second,
		},
		Storage: StorageConfig{
			SessionDB:  "peersync.db",
			DocumentDB: "answers.db",
		},
		Notify: NotifyConfig{RedisChannel: "peersync:notifications"},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads YAML from r over the defaults and validates the result.
// Unknown keys are rejected.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against the embedded schema.
func Validate(cfg Config) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	unified := def.Unify(ctx.Encode(cfg.view()))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// HeartbeatSettings returns the heartbeat monitor configuration.
func (c Config) HeartbeatSettings() heartbeat.Config {
	return heartbeat.Config{Interval: c.Heartbeat.Interval, Timeout: c.Heartbeat.Timeout}
}

// ReconnectSettings returns the retry policy.
func (c Config) ReconnectSettings() reconnect.Config {
	return reconnect.Config{
		Base:        c.Reconnect.Base,
		Max:         c.Reconnect.Max,
		MaxAttempts: c.Reconnect.MaxAttempts,
	}
}

// SessionSettings returns the coordinator configuration.
func (c Config) SessionSettings() session.Config {
	return session.Config{
		HostPrefix:      c.Room.HostPrefix,
		OpenTimeout:     c.OpenTimeout,
		Heartbeat:       c.HeartbeatSettings(),
		Reconnect:       c.ReconnectSettings(),
		CoalescePending: c.Pending.Coalesce,
	}
}
