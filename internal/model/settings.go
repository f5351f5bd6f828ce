package model

import "time"

const (
	DefaultHealthcheckTimeout = time.Second
	DefaultHealthcheckPort    = 8080
	DefaultWorkerConnections  = 1024
	DefaultListenPort         = 80
)

// GatewaySettings holds the per tier tuning parameters from the nginx table.
type GatewaySettings struct {
	HealthcheckTargets *bool               `json:"healthcheck_targets,omitempty"`
	HealthcheckTimeout *float64            `json:"healthcheck_timeout,omitempty"`
	HealthcheckPort    *int                `json:"healthcheck_port,omitempty"`
	WorkerRlimitNofile int                 `json:"worker_rlimit_nofile,omitempty"`
	WorkerConnections  int                 `json:"worker_connections,omitempty"`
	ListenPort         int                 `json:"listen_port,omitempty"`
	User               string              `json:"user,omitempty"`
	APIKeyPassthrough  []APIKeyPassthrough `json:"api_key_passthrough,omitempty"`

	// Params is the raw record. Its untyped scalar keys are rendered as nginx directives.
	Params map[string]any `json:"-"`
}

// APIKeyPassthrough lets a header value matching KeyValue act as a key for ProductName.
type APIKeyPassthrough struct {
	KeyName     string `json:"key_name"`
	KeyValue    string `json:"key_value"`
	ProductName string `json:"product_name"`
}

func (settings GatewaySettings) HealthcheckEnabled() bool {
	return settings.HealthcheckTargets == nil || *settings.HealthcheckTargets
}

func (settings GatewaySettings) Timeout() time.Duration {
	if settings.HealthcheckTimeout == nil || *settings.HealthcheckTimeout <= 0 {
		return DefaultHealthcheckTimeout
	}
	return time.Duration(*settings.HealthcheckTimeout * float64(time.Second))
}

func (settings GatewaySettings) Port() int {
	if settings.HealthcheckPort == nil || *settings.HealthcheckPort <= 0 {
		return DefaultHealthcheckPort
	}
	return *settings.HealthcheckPort
}

func (settings GatewaySettings) Connections() int {
	if settings.WorkerConnections <= 0 {
		return DefaultWorkerConnections
	}
	return settings.WorkerConnections
}

func (settings GatewaySettings) Listen() int {
	if settings.ListenPort <= 0 {
		return DefaultListenPort
	}
	return settings.ListenPort
}
