package rewind

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type (
	Config struct {
		// HistoryCap bounds the number of undoable entries retained
		HistoryCap int `env:"REWIND_HISTORY_CAP"`

		// QueueSize bounds jobs waiting behind the running one. Submitters
		// block while the queue is full
		QueueSize int `env:"REWIND_QUEUE_SIZE"`

		// EventBufferSize bounds undelivered events. Events emitted while
		// the buffer is full are dropped
		EventBufferSize int `env:"REWIND_EVENT_BUFFER_SIZE"`

		// CommandTimeout bounds each Apply and Revert call. Zero disables
		// the timeout. Commands implementing Timed override it
		CommandTimeout time.Duration `env:"REWIND_COMMAND_TIMEOUT"`

		// StrictCheckpoints keeps checkpointed entries even when that
		// leaves the history above HistoryCap
		StrictCheckpoints bool `env:"REWIND_STRICT_CHECKPOINTS"`
	}
)

const (
	DefaultHistoryCap      = 100
	DefaultQueueSize       = 64
	DefaultEventBufferSize = 1024
	DefaultCommandTimeout  = 0
)

func DefaultConfig() Config {
	return Config{
		HistoryCap:      DefaultHistoryCap,
		QueueSize:       DefaultQueueSize,
		EventBufferSize: DefaultEventBufferSize,
		CommandTimeout:  DefaultCommandTimeout,
	}
}

// ConfigFromEnv returns DefaultConfig overlaid with any REWIND_* variables
// present in the environment
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.HistoryCap <= 0 {
		c.HistoryCap = def.HistoryCap
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = def.EventBufferSize
	}
	if c.CommandTimeout < 0 {
		c.CommandTimeout = 0
	}
	return c
}
