// Package config loads stackline configuration from CUE files.
//
// A file is unified with an embedded schema that carries the defaults and
// constraints, so an empty file yields Default().
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/stackline/internal/engine"
)

//go:embed schema.cue
var schemaCUE string

// Config is the decoded configuration.
type Config struct {
	LayerHeight int     `json:"layer_height" yaml:"layer_height"`
	Playhead    string  `json:"playhead" yaml:"playhead"`
	IDs         string  `json:"ids" yaml:"ids"`
	Log         Log     `json:"log" yaml:"log"`
	Journal     Journal `json:"journal" yaml:"journal"`
}

// Log selects the slog handler.
type Log struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Journal configures the edit journal.
type Journal struct {
	Path string `json:"path" yaml:"path"`
}

// Error is a configuration error with the CUE source position when known.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := Parse(nil, "default.cue")
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema is invalid: %v", err))
	}
	return cfg
}

// Load reads and validates the configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, path)
}

// Parse validates CUE source against the schema. filename is used in
// error positions.
func Parse(src []byte, filename string) (Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	file := ctx.CompileBytes(src, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}

	// Validation catches conflicts and unknown fields; Decode applies the
	// defaults and reports anything left incomplete.
	v := def.Unify(file)
	if err := v.Validate(); err != nil {
		return Config{}, formatCUEError(err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, formatCUEError(err)
	}
	if _, err := cfg.PlayheadDuration(); err != nil {
		return Config{}, &Error{
			Field:   "playhead",
			Message: err.Error(),
			Pos:     v.LookupPath(cue.ParsePath("playhead")).Pos(),
		}
	}
	return cfg, nil
}

// PlayheadDuration parses Playhead. Negative positions are rejected.
func (c Config) PlayheadDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Playhead)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("playhead %s must not be negative", d)
	}
	return d, nil
}

// Engine maps the configuration to timeline parameters.
func (c Config) Engine() (engine.Config, error) {
	p, err := c.PlayheadDuration()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{LayerHeight: c.LayerHeight, Playhead: p}, nil
}

// IDGenerator returns the configured generator.
func (c Config) IDGenerator() engine.IDGenerator {
	if c.IDs == "sequential" {
		return engine.NewSequentialGenerator()
	}
	return engine.UUIDv7Generator{}
}

// Level returns the configured slog level.
func (c Config) Level() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Field: "cue", Message: err.Error()}
	}
	first := errs[0]
	field := "cue"
	if path := first.Path(); len(path) > 0 {
		field = path[len(path)-1]
	}
	e := &Error{Field: field, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}
