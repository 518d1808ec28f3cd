package notification

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/openclinic/healthdesk/internal/record"
)

// ConsoleChannel prints alerts to a writer, one line each. It is the
// development-mode channel.
type ConsoleChannel struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleChannel creates a console channel writing to stdout.
func NewConsoleChannel() *ConsoleChannel {
	return &ConsoleChannel{out: os.Stdout}
}

func (c *ConsoleChannel) Name() string { return "console" }

func (c *ConsoleChannel) Notify(ctx context.Context, alert record.PatternAlert) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := fmt.Fprintf(c.out, "[ALERT %s/%s] %s\n", alert.Type, alert.Severity, alert.Message)
	return err
}

// LogChannel records alerts in the structured log. It is the
// production-mode channel.
type LogChannel struct {
	log *zap.Logger
}

// NewLogChannel creates a log channel.
func NewLogChannel(log *zap.Logger) *LogChannel {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogChannel{log: log}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Notify(ctx context.Context, alert record.PatternAlert) error {
	c.log.Warn("pattern alert raised",
		zap.String("alert_id", alert.ID.String()),
		zap.String("patient_id", alert.PatientID.String()),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
		zap.String("message", alert.Message))
	return nil
}

// CaptureChannel records alerts in memory for tests.
type CaptureChannel struct {
	mu     sync.Mutex
	fail   bool
	alerts []record.PatternAlert
}

// NewCaptureChannel creates a capturing channel.
func NewCaptureChannel() *CaptureChannel {
	return &CaptureChannel{}
}

func (c *CaptureChannel) Name() string { return "capture" }

func (c *CaptureChannel) Notify(ctx context.Context, alert record.PatternAlert) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail {
		return fmt.Errorf("capture channel configured to fail")
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

// SetFail makes subsequent deliveries fail.
func (c *CaptureChannel) SetFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

// Captured returns the alerts delivered so far.
func (c *CaptureChannel) Captured() []record.PatternAlert {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]record.PatternAlert, len(c.alerts))
	copy(out, c.alerts)
	return out
}
