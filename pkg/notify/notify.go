// Package notify delivers operator alerts to external channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"
)

// Level is the severity of an alert.
type Level string

const (
	Info     Level = "INFO"
	Warning  Level = "WARNING"
	Critical Level = "CRITICAL"
)

// Alert is one notification.
type Alert struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Notifier delivers alerts.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// Log writes alerts to the service log.
type Log struct{}

// NewLog returns a log notifier.
func NewLog() *Log { return &Log{} }

func (Log) Send(ctx context.Context, alert Alert) error {
	logger := logx.WithContext(ctx)
	msg := fmt.Sprintf("notify [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	if alert.Level == Critical {
		logger.Error(msg)
		return nil
	}
	logger.Info(msg)
	return nil
}

// Multi fans an alert out to every notifier. All channels are attempted;
// their errors are joined.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards alerts.
type Nop struct{}

func (Nop) Send(context.Context, Alert) error { return nil }
