package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/fabric.inspect/internal/sensor"
	"github.com/banshee-data/fabric.inspect/internal/units"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/inspector.defaults.json"

// InspectorConfig is the root configuration of the inspection rig. Every
// field is optional; the Get* accessors fall back to the built-in defaults,
// so partial files are safe.
type InspectorConfig struct {
	// Sampling loop
	SamplingRateHz *float64 `json:"sampling_rate_hz,omitempty"`
	WindowSize     *int     `json:"window_size,omitempty"`
	SensorUnits    *string  `json:"sensor_units,omitempty"`

	// Frame trigger
	VerticalFOV *float64 `json:"vertical_fov,omitempty"`

	// Worker pools
	PublishWorkers *int    `json:"publish_workers,omitempty"`
	CaptureWorkers *int    `json:"capture_workers,omitempty"`
	PublishQueue   *int    `json:"publish_queue,omitempty"`
	CaptureQueue   *int    `json:"capture_queue,omitempty"`
	ShutdownGrace  *string `json:"shutdown_grace,omitempty"` // duration string like "2s"

	// Ingestion service
	IngestURL   *string `json:"ingest_url,omitempty"`
	HTTPTimeout *string `json:"http_timeout,omitempty"` // duration string like "5s"

	// Velocity sensor
	SerialPort *string             `json:"serial_port,omitempty"`
	Serial     *sensor.PortOptions `json:"serial,omitempty"`

	// Admin surface
	StatusHistory *int `json:"status_history,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a config with every field unset.
func EmptyConfig() *InspectorConfig {
	return &InspectorConfig{}
}

// LoadConfig loads an InspectorConfig from a JSON file. The file must have a
// .json extension and be under 1MB.
func LoadConfig(path string) (*InspectorConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded, intended for test setup.
func MustLoadDefaultConfig() *InspectorConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the set values are usable.
func (c *InspectorConfig) Validate() error {
	if c.SamplingRateHz != nil && *c.SamplingRateHz <= 0 {
		return fmt.Errorf("sampling_rate_hz must be positive, got %g", *c.SamplingRateHz)
	}
	if c.WindowSize != nil && *c.WindowSize < 1 {
		return fmt.Errorf("window_size must be at least 1, got %d", *c.WindowSize)
	}
	if c.VerticalFOV != nil && *c.VerticalFOV <= 0 {
		return fmt.Errorf("vertical_fov must be positive, got %g", *c.VerticalFOV)
	}
	if c.SensorUnits != nil && !units.IsValid(*c.SensorUnits) {
		return fmt.Errorf("sensor_units %q is not one of %s", *c.SensorUnits, units.GetValidUnitsString())
	}

	for name, v := range map[string]*int{
		"publish_workers": c.PublishWorkers,
		"capture_workers": c.CaptureWorkers,
		"publish_queue":   c.PublishQueue,
		"capture_queue":   c.CaptureQueue,
		"status_history":  c.StatusHistory,
	} {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, *v)
		}
	}

	for name, v := range map[string]*string{
		"http_timeout":   c.HTTPTimeout,
		"shutdown_grace": c.ShutdownGrace,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}

	if c.IngestURL != nil && *c.IngestURL == "" {
		return fmt.Errorf("ingest_url must not be empty")
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("invalid serial options: %w", err)
		}
	}
	return nil
}

// GetSamplingRateHz returns the sampling rate or the default of 50 Hz.
func (c *InspectorConfig) GetSamplingRateHz() float64 {
	if c.SamplingRateHz == nil {
		return 50
	}
	return *c.SamplingRateHz
}

// GetWindowSize returns the moving-average window or the default of 5.
func (c *InspectorConfig) GetWindowSize() int {
	if c.WindowSize == nil {
		return 5
	}
	return *c.WindowSize
}

// GetSensorUnits returns the sensor's reporting unit or the default (per second).
func (c *InspectorConfig) GetSensorUnits() string {
	if c.SensorUnits == nil {
		return units.MPS
	}
	return *c.SensorUnits
}

// GetVerticalFOV returns the frame height or the default of 25.
func (c *InspectorConfig) GetVerticalFOV() float64 {
	if c.VerticalFOV == nil {
		return 25
	}
	return *c.VerticalFOV
}

func (c *InspectorConfig) GetPublishWorkers() int {
	if c.PublishWorkers == nil {
		return 50
	}
	return *c.PublishWorkers
}

func (c *InspectorConfig) GetCaptureWorkers() int {
	if c.CaptureWorkers == nil {
		return 2
	}
	return *c.CaptureWorkers
}

func (c *InspectorConfig) GetPublishQueue() int {
	if c.PublishQueue == nil {
		return 256
	}
	return *c.PublishQueue
}

func (c *InspectorConfig) GetCaptureQueue() int {
	if c.CaptureQueue == nil {
		return 8
	}
	return *c.CaptureQueue
}

// GetShutdownGrace returns how long Stop waits for in-flight work. Zero, the
// default, abandons queued work immediately.
func (c *InspectorConfig) GetShutdownGrace() time.Duration {
	return parseDurationOr(c.ShutdownGrace, 0)
}

// GetIngestURL returns the ingestion service base URL.
func (c *InspectorConfig) GetIngestURL() string {
	if c.IngestURL == nil {
		return "http://127.0.0.1:5000"
	}
	return *c.IngestURL
}

// GetHTTPTimeout returns the per-request timeout for the ingestion client.
func (c *InspectorConfig) GetHTTPTimeout() time.Duration {
	return parseDurationOr(c.HTTPTimeout, 5*time.Second)
}

// GetSerialPort returns the velocity sensor device path.
func (c *InspectorConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

// GetSerial returns the serial options; unset fields are filled in when the
// port is opened.
func (c *InspectorConfig) GetSerial() sensor.PortOptions {
	if c.Serial == nil {
		return sensor.PortOptions{}
	}
	return *c.Serial
}

// GetStatusHistory returns how many samples the admin status board keeps.
func (c *InspectorConfig) GetStatusHistory() int {
	if c.StatusHistory == nil {
		return 500
	}
	return *c.StatusHistory
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}
