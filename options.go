package sheetcalc

import "github.com/sirupsen/logrus"

// Options holds configuration for the Server.
type Options struct {
	addr   string
	logger *logrus.Logger
}

func defaultOptions() *Options {
	return &Options{
		addr:   ":8080",
		logger: logrus.New(),
	}
}

// Option configures the Server.
type Option func(*Options)

// WithAddr sets the listen address (default ":8080").
func WithAddr(addr string) Option {
	return func(o *Options) { o.addr = addr }
}

// WithLogger sets the logger used by the server.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *Options) { o.logger = logger }
}
