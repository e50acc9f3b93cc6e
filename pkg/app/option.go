package app

import (
	"io"
	"os"
)

// Option configures the environment run by Run().
type Option func(o *opts)

type opts struct {
	logOutput io.Writer
}

func defaultOpts() opts {
	return opts{
		logOutput: os.Stdout,
	}
}

// WithLogOutput configures where logs are written. Defaults to stdout.
func WithLogOutput(w io.Writer) Option {
	return func(o *opts) {
		o.logOutput = w
	}
}
