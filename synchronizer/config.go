package synchronizer

import (
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	DefaultWindow        = 10_000
	DefaultConfirmations = 12
)

func DefaultConfig() Config {
	return Config{
		Window:          DefaultWindow,
		Confirmations:   DefaultConfirmations,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		QueueSize:       256,
	}
}

//nolint:lll
type Config struct {
	Window          uint64        `long:"window"           description:"Number of recent blocks reconstructed at startup"`
	FullRange       bool          `long:"full-range"       description:"Reconstruct from block 0 instead of the recent window"`
	Confirmations   uint64        `long:"confirmations"    description:"Depth below the head at which an event is reported as confirmed"`
	InitialInterval time.Duration `long:"initial-interval" description:"First retry delay after a gateway failure"`
	MaxInterval     time.Duration `long:"max-interval"     description:"Upper bound of the retry delay"`
	QueueSize       int           `long:"queue-size"       description:"Capacity of the apply queue and of live subscription buffers"`
}

// implement zap.ObjectMarshaler interface.
func (c Config) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint64("window", c.Window)
	enc.AddBool("full-range", c.FullRange)
	enc.AddUint64("confirmations", c.Confirmations)
	enc.AddDuration("initial-interval", c.InitialInterval)
	enc.AddDuration("max-interval", c.MaxInterval)
	enc.AddInt("queue-size", c.QueueSize)
	return nil
}

// windowStart is the first block of the historical window ending at head.
func (c Config) windowStart(head uint64) uint64 {
	if c.FullRange || head <= c.Window {
		return 0
	}
	return head - c.Window
}
