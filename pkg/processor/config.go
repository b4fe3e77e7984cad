package processor

import "time"

// Config controls retries, locking and batch concurrency.
type Config struct {
	MaxCommitAttempts        int           // Fresh retrieve+commit attempts before escalation (default: 3)
	TransientMaxRetries      int           // Backoff retries per store call (default: 3)
	TransientInitialInterval time.Duration // First backoff delay (default: 50ms)
	TransientMaxInterval     time.Duration // Backoff cap (default: 1s)
	WorkerCount              int           // Batch worker pool size (default: 4)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxCommitAttempts:        3,
		TransientMaxRetries:      3,
		TransientInitialInterval: 50 * time.Millisecond,
		TransientMaxInterval:     time.Second,
		WorkerCount:              4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxCommitAttempts <= 0 {
		c.MaxCommitAttempts = d.MaxCommitAttempts
	}
	if c.TransientMaxRetries < 0 {
		c.TransientMaxRetries = d.TransientMaxRetries
	}
	if c.TransientInitialInterval <= 0 {
		c.TransientInitialInterval = d.TransientInitialInterval
	}
	if c.TransientMaxInterval <= 0 {
		c.TransientMaxInterval = d.TransientMaxInterval
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	return c
}
