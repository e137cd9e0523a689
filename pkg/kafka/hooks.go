package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook wraps message handling. Returning an error from BeforeHandle
// skips the handler and sends the message down the error path (OnError, DLQ,
// commit).
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, []byte, error)
	AfterHandle(ctx context.Context, km kafka.Message, err error)
	OnError(ctx context.Context, km kafka.Message, err error)
}

// NoopHook passes messages through untouched.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, []byte, error) {
	return ctx, km.Value, nil
}

func (NoopHook) AfterHandle(context.Context, kafka.Message, error) {}

func (NoopHook) OnError(context.Context, kafka.Message, error) {}

// HookError classifies a hook failure, e.g. ERR_EMPTY or ERR_PANIC.
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *HookError) Unwrap() error { return e.Err }

// HookFuncs adapts plain functions to ConsumerHook. Nil functions are no-ops.
type HookFuncs struct {
	Before func(context.Context, kafka.Message) (context.Context, []byte, error)
	After  func(context.Context, kafka.Message, error)
	Err    func(context.Context, kafka.Message, error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, []byte, error) {
	if h.Before == nil {
		return ctx, km.Value, nil
	}
	return h.Before(ctx, km)
}

func (h HookFuncs) AfterHandle(ctx context.Context, km kafka.Message, err error) {
	if h.After != nil {
		h.After(ctx, km, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, km kafka.Message, err error) {
	if h.Err != nil {
		h.Err(ctx, km, err)
	}
}

type ctxKey string

const ctxMessageKey ctxKey = "kafka_message_key"

// MessageKey returns the Kafka key of the message being handled.
func MessageKey(ctx context.Context) string {
	v, _ := ctx.Value(ctxMessageKey).(string)
	return v
}

// runBefore calls BeforeHandle with panic recovery.
func runBefore(h ConsumerHook, ctx context.Context, km kafka.Message) (outCtx context.Context, data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			outCtx, data = ctx, km.Value
			err = &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("hook panic: %v", r)}
		}
	}()
	return h.BeforeHandle(ctx, km)
}

func runAfter(h ConsumerHook, ctx context.Context, km kafka.Message, err error) {
	defer func() { _ = recover() }()
	h.AfterHandle(ctx, km, err)
}

func runOnError(h ConsumerHook, ctx context.Context, km kafka.Message, err error) {
	defer func() { _ = recover() }()
	h.OnError(ctx, km, err)
}
