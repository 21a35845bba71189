package config

import "time"

// Default returns the configuration used when neither file nor
// environment say otherwise: in-process backend without snapshotting,
// info-level JSON logs, telemetry off.
func Default() *Config {
	return &Config{
		Persistence: PersistenceConfig{
			FlushInterval:   5 * time.Second,
			MaxOpenConns:    16,
			MaxIdleConns:    4,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Log: LogConfig{
			Level:        "info",
			Format:       "json",
			OutputPaths:  []string{"stderr"},
			EnableCaller: false,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "agentstate",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}
