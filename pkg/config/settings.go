// Package config loads facet settings from a JSON file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid settings")

type Settings struct {
	Log       LogSettings       `json:"log"`
	Smoothing SmoothingSettings `json:"smoothing"`
	Engine    EngineSettings    `json:"engine"`
	Server    ServerSettings    `json:"server"`
}

type LogSettings struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// SmoothingSettings holds the bilateral filter defaults. The sigma scales
// multiply the average edge length of the mesh being smoothed.
type SmoothingSettings struct {
	SigmaCScale float64 `json:"sigmaCScale"`
	SigmaSScale float64 `json:"sigmaSScale"`
	Iterations  int     `json:"iterations"`
	Workers     int     `json:"workers"`
}

type EngineSettings struct {
	TimeoutMs int `json:"timeoutMs"`
	MeshCells int `json:"meshCells"`
}

// Timeout returns the evaluation timeout as a duration.
func (e EngineSettings) Timeout() time.Duration {
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

type ServerSettings struct {
	Addr string `json:"addr"`
}

// Default returns the settings used when no file is given.
func Default() Settings {
	return Settings{
		Log: LogSettings{
			Level: "info",
		},
		Smoothing: SmoothingSettings{
			SigmaCScale: 1.0 / 20,
			SigmaSScale: 1.0 / 3,
			Iterations:  1,
		},
		Engine: EngineSettings{
			TimeoutMs: 30000,
			MeshCells: 64,
		},
		Server: ServerSettings{
			Addr: "localhost:8080",
		},
	}
}

// Load reads settings from path on top of the defaults. An empty path
// returns the defaults. Fields missing from the file keep their defaults.
func Load(path string) (Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return Settings{}, fmt.Errorf("config: %w", err)
	}
	defer file.Close()

	dec := json.NewDecoder(file)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks value ranges. Workers may be zero, meaning one worker per
// CPU.
func (s Settings) Validate() error {
	if _, err := zapcore.ParseLevel(s.Log.Level); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalid, s.Log.Level)
	}
	sm := s.Smoothing
	switch {
	case !(sm.SigmaCScale > 0):
		return fmt.Errorf("%w: smoothing.sigmaCScale must be positive, got %v", ErrInvalid, sm.SigmaCScale)
	case !(sm.SigmaSScale > 0):
		return fmt.Errorf("%w: smoothing.sigmaSScale must be positive, got %v", ErrInvalid, sm.SigmaSScale)
	case sm.Iterations < 1:
		return fmt.Errorf("%w: smoothing.iterations must be at least 1, got %d", ErrInvalid, sm.Iterations)
	case sm.Workers < 0:
		return fmt.Errorf("%w: smoothing.workers must not be negative, got %d", ErrInvalid, sm.Workers)
	case s.Engine.TimeoutMs <= 0:
		return fmt.Errorf("%w: engine.timeoutMs must be positive, got %d", ErrInvalid, s.Engine.TimeoutMs)
	case s.Engine.MeshCells < 8:
		return fmt.Errorf("%w: engine.meshCells must be at least 8, got %d", ErrInvalid, s.Engine.MeshCells)
	case s.Server.Addr == "":
		return fmt.Errorf("%w: server.addr is empty", ErrInvalid)
	}
	return nil
}
