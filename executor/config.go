package executor

import (
	"fmt"

	"github.com/next-trace/scg-extension-bus/config"
	berr "github.com/next-trace/scg-extension-bus/contract/errors"
	"github.com/next-trace/scg-extension-bus/contract/ext"
)

// FromConfig builds the executor selected by cfg and the function that shuts it down.
func FromConfig(cfg config.ExecutorConfig) (ext.Executor, func() error, error) {
	switch cfg.Kind {
	case "", config.ExecutorGoroutine:
		return Goroutine{}, func() error { return nil }, nil
	case config.ExecutorPool:
		p := NewPool(cfg.Workers)
		return p, p.Close, nil
	case config.ExecutorSerial:
		s := NewSerial()
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("executor kind %q: %w", cfg.Kind, berr.ErrInvalidConfiguration)
	}
}
