package client

import (
	"time"

	"go.uber.org/zap/zapcore"
)

func DefaultConfig() Config {
	return Config{
		NodeURL:      "http://127.0.0.1:8545",
		RetryMax:     4,
		RetryWaitMin: 200 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		DialTimeout:  10 * time.Second,
		CacheSize:    1024,
	}
}

//nolint:lll
type Config struct {
	NodeURL      string        `long:"node-url"       description:"Address of the ledger node"`
	RetryMax     int           `long:"retry-max"      description:"Number of retries of a failed request"`
	RetryWaitMin time.Duration `long:"retry-wait-min" description:"Minimum wait between retries"`
	RetryWaitMax time.Duration `long:"retry-wait-max" description:"Maximum wait between retries"`
	DialTimeout  time.Duration `long:"dial-timeout"   description:"Timeout of opening a subscription"`
	CacheSize    int           `long:"cache-size"     description:"Number of registered addresses to remember"`
}

// implement zap.ObjectMarshaler interface.
func (c Config) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("node-url", c.NodeURL)
	enc.AddInt("retry-max", c.RetryMax)
	enc.AddDuration("retry-wait-min", c.RetryWaitMin)
	enc.AddDuration("retry-wait-max", c.RetryWaitMax)
	enc.AddDuration("dial-timeout", c.DialTimeout)
	enc.AddInt("cache-size", c.CacheSize)
	return nil
}
