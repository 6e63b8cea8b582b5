package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Mailbox  MailboxConfig  `json:"mailbox"`

	// Notifier controls the async outbound dispatch pipeline.
	// If the whole section is omitted, the dispatcher runs with defaults.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	Health HealthConfig `json:"health,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MailboxConfig controls the disposable-mailbox provider and poll loop.
//
// All durations are Go duration strings (e.g. "3s", "10s").
//
// Defaults (when fields are omitted/zero):
//   - base_url: "https://tempmail.plus"
//   - domain: "mailto.plus"
//   - poll_interval: "3s"
//   - fetch_timeout: "10s"
//   - preview_limit: 500
type MailboxConfig struct {
	BaseURL      string `json:"base_url,omitempty"`
	Domain       string `json:"domain,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`
	FetchTimeout string `json:"fetch_timeout,omitempty"`
	PreviewLimit int    `json:"preview_limit,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type NotifierConfig struct {
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
}

// HealthConfig controls the liveness HTTP endpoint.
//
// Prefer binding to localhost unless a load balancer probes it.
type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8086"
}
