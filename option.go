package paygate

import (
	"time"

	"github.com/evmfactory/paygate/logger"
	"github.com/evmfactory/paygate/metrics"
)

type Option func(*Paygate)

func WithLogger(l logger.Logger) Option {
	return func(p *Paygate) {
		p.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(p *Paygate) {
		p.metrics = r
	}
}

// WithClock overrides the time source, used for authorization expiry checks.
func WithClock(now func() time.Time) Option {
	return func(p *Paygate) {
		p.now = now
	}
}
