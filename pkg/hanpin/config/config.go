// Package config loads the YAML application configuration used by the
// command-line tools. Engine behavior itself is configured through
// hanpin.Options; this file only wires paths and advisory settings.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/hanpin/pkg/hanpin/internalerr"
)

// Advisory configures the optional Ollama-compatible collaborator.
type Advisory struct {
	Host           string `yaml:"host"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	DoubleCheck    *bool  `yaml:"double_check"`
}

// App is the application configuration.
type App struct {
	DataDir         string   `yaml:"data_dir"`
	Advisory        Advisory `yaml:"advisory"`
	WordLikeSpacing *bool    `yaml:"word_like_spacing"`
	ReviewThreshold float64  `yaml:"review_threshold"`
	HistoryDB       string   `yaml:"history_db"`
}

// Default returns the configuration used when no file is given.
func Default() App {
	return App{
		DataDir: ".",
		Advisory: Advisory{
			Host:           "http://localhost:11434",
			TimeoutSeconds: 60,
		},
	}
}

// Load reads a YAML config file and fills in defaults for absent
// fields.
func Load(path string) (App, error) {
	app := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return App{}, err
	}
	if err := yaml.Unmarshal(data, &app); err != nil {
		return App{}, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}

	if app.DataDir == "" {
		app.DataDir = "."
	}
	if app.Advisory.Host == "" {
		app.Advisory.Host = "http://localhost:11434"
	}
	if app.Advisory.TimeoutSeconds <= 0 {
		app.Advisory.TimeoutSeconds = 60
	}
	return app, nil
}

// DoubleCheckEnabled reports whether the double-check step should run;
// it defaults to on when a model is configured.
func (a Advisory) DoubleCheckEnabled() bool {
	if a.DoubleCheck != nil {
		return *a.DoubleCheck
	}
	return a.Model != ""
}

// SpacingEnabled reports whether word-like spacing should run; on by
// default.
func (a App) SpacingEnabled() bool {
	if a.WordLikeSpacing != nil {
		return *a.WordLikeSpacing
	}
	return true
}
