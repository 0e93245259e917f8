package model

// LogConfig is the persisted api_logs / api access-log mirroring policy.
type LogConfig struct {
	Enabled   bool   `json:"enabled"`
	Directory string `json:"directory,omitempty"`
	MaxSizeMB int    `json:"max_size_mb"`
}

// Clamp enforces the [5, 2048] MB bound from the spec.
func (c *LogConfig) Clamp() {
	if c.MaxSizeMB < 5 {
		c.MaxSizeMB = 5
	}
	if c.MaxSizeMB > 2048 {
		c.MaxSizeMB = 2048
	}
}

// ServerConfig is the persisted api_server.json payload.
type ServerConfig struct {
	ListenHost string `json:"listen_host"`
	Port       int    `json:"port"`
	TimeoutSecs int   `json:"timeout_secs"`
}

const (
	DefaultPort        = 6688
	DefaultTimeoutSecs = 120
	minTimeoutSecs     = 30
	maxTimeoutSecs     = 600
)

// Clamp enforces the [30, 600] second bound from the spec and fills in
// defaults for a zero-value config.
func (c *ServerConfig) Clamp() {
	if c.ListenHost == "" {
		c.ListenHost = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = DefaultTimeoutSecs
	}
	if c.TimeoutSecs < minTimeoutSecs {
		c.TimeoutSecs = minTimeoutSecs
	}
	if c.TimeoutSecs > maxTimeoutSecs {
		c.TimeoutSecs = maxTimeoutSecs
	}
}
