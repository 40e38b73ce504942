package resilience

import "time"

// TimeoutConfig centralises every named deadline in the verification engine,
// organised by subsystem for easy auditing and tuning.
type TimeoutConfig struct {
	HTTP       HTTPTimeouts       `yaml:"http"`
	Connector  ConnectorTimeouts  `yaml:"connector"`
	Model      ModelTimeouts      `yaml:"model"`
	Request    RequestTimeouts    `yaml:"request"`
	Ingestion  IngestionTimeouts  `yaml:"ingestion"`
}

// HTTPTimeouts configures outbound HTTP client behaviour shared by every
// external collaborator (connectors, embedding providers, model backends).
type HTTPTimeouts struct {
	ConnectTimeout        time.Duration `yaml:"connect_timeout"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
}

// ConnectorTimeouts bounds a single source connector fetch (T_CONNECTOR).
type ConnectorTimeouts struct {
	PerConnector time.Duration `yaml:"per_connector"`
}

// ModelTimeouts bounds a single model backend call (T_MODEL) and the health
// sampler's ping interval (T_HEALTH).
type ModelTimeouts struct {
	PerCall       time.Duration `yaml:"per_call"`
	HealthSample  time.Duration `yaml:"health_sample"`
}

// RequestTimeouts bounds a whole verification request, online vs offline
// (T_REQUEST).
type RequestTimeouts struct {
	Online  time.Duration `yaml:"online"`
	Offline time.Duration `yaml:"offline"`
}

// IngestionTimeouts bounds the cooldown between ingestion runs (T_COOLDOWN).
type IngestionTimeouts struct {
	Cooldown time.Duration `yaml:"cooldown"`
}

// DefaultTimeoutConfig returns the defaults named throughout spec.md.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		HTTP: HTTPTimeouts{
			ConnectTimeout:        5 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: 5 * time.Second,
		},
		Connector: ConnectorTimeouts{
			PerConnector: 60 * time.Second, // T_CONNECTOR
		},
		Model: ModelTimeouts{
			PerCall:      30 * time.Second, // T_MODEL
			HealthSample: 60 * time.Second, // T_HEALTH
		},
		Request: RequestTimeouts{
			Online:  15 * time.Second, // T_REQUEST online
			Offline: 20 * time.Second, // T_REQUEST offline
		},
		Ingestion: IngestionTimeouts{
			Cooldown: 10 * time.Minute, // T_COOLDOWN
		},
	}
}
