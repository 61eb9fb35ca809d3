package config

import "time"

// schemaView is the shape the CUE schema constrains: plain numbers and
// strings, durations as whole milliseconds.
type schemaView struct {
	Heartbeat struct {
		IntervalMS int64 `json:"interval_ms"`
		TimeoutMS  int64 `json:"timeout_ms"`
	} `json:"heartbeat"`
	Reconnect struct {
		BaseMS      int64 `json:"base_ms"`
		MaxMS       int64 `json:"max_ms"`
		MaxAttempts int   `json:"max_attempts"`
	} `json:"reconnect"`
	OpenTimeoutMS int64 `json:"open_timeout_ms"`
	Pending       struct {
		Coalesce bool `json:"coalesce"`
	} `json:"pending"`
	Room struct {
		HostPrefix string `json:"host_prefix"`
	} `json:"room"`
	Transport struct {
		Kind            string `json:"kind"`
		Listen          string `json:"listen"`
		Service         string `json:"service"`
		Domain          string `json:"domain"`
		LookupTimeoutMS int64  `json:"lookup_timeout_ms"`
	} `json:"transport"`
	Storage struct {
		SessionDB  string `json:"session_db"`
		DocumentDB string `json:"document_db"`
	} `json:"storage"`
	Notify struct {
		RedisAddr    string `json:"redis_addr"`
		RedisChannel string `json:"redis_channel"`
	} `json:"notify"`
}

func ms(d time.Duration) int64 { return d.Milliseconds() }

func (c Config) view() schemaView {
	var v schemaView
	v.Heartbeat.IntervalMS = ms(c.Heartbeat.Interval)
	v.Heartbeat.TimeoutMS = ms(c.Heartbeat.Timeout)
	v.Reconnect.BaseMS = ms(c.Reconnect.Base)
	v.Reconnect.MaxMS = ms(c.Reconnect.Max)
	v.Reconnect.MaxAttempts = c.Reconnect.MaxAttempts
	v.OpenTimeoutMS = ms(c.OpenTimeout)
	v.Pending.Coalesce = c.Pending.Coalesce
	v.Room.HostPrefix = c.Room.HostPrefix
	v.Transport.Kind = c.Transport.Kind
	v.Transport.Listen = c.Transport.Listen
	v.Transport.Service = c.Transport.Service
	v.Transport.Domain = c.Transport.Domain
	v.Transport.LookupTimeoutMS = ms(c.Transport.LookupTimeout)
	v.Storage.SessionDB = c.Storage.SessionDB
	v.Storage.DocumentDB = c.Storage.DocumentDB
	v.Notify.RedisAddr = c.Notify.RedisAddr
	v.Notify.RedisChannel = c.Notify.RedisChannel
	return v
}
