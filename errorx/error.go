package errorx

import (
	"errors"
	"fmt"
)

// Error is the unified error type: code, category, service, message, cause
// and free-form fields.
type Error struct {
	Code    CodeEntry      `json:"code"`
	Type    CodeEntry      `json:"type"`    // ErrTypeSys / ErrTypeBiz
	Success bool           `json:"success"` // the call itself succeeded, e.g. a benign not-found
	Service CodeEntry      `json:"service"` // store / collector / reporter ...
	Message string         `json:"message"` // overrides Code.Message
	Cause   error          `json:"-"`
	Fields  map[string]any `json:"fields,omitempty"`
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = e.Code.Message
	}
	if e.Cause != nil {
		return fmt.Sprintf("code=%d msg=%s cause=%v", e.Code.Code, msg, e.Cause)
	}
	return fmt.Sprintf("code=%d msg=%s", e.Code.Code, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// -------------------- Option --------------------

type Option func(*Error)

func WithMessage(msg string) Option {
	return func(e *Error) { e.Message = msg }
}

func WithCause(err error) Option {
	return func(e *Error) { e.Cause = err }
}

func WithType(t CodeEntry) Option {
	return func(e *Error) { e.Type = t }
}

func WithSuccess(success bool) Option {
	return func(e *Error) { e.Success = success }
}

func WithService(s CodeEntry) Option {
	return func(e *Error) { e.Service = s }
}

func WithField(k string, v any) Option {
	return func(e *Error) {
		if e.Fields == nil {
			e.Fields = make(map[string]any)
		}
		e.Fields[k] = v
	}
}

func WithFields(kv map[string]any) Option {
	return func(e *Error) {
		if len(kv) == 0 {
			return
		}
		if e.Fields == nil {
			e.Fields = make(map[string]any, len(kv))
		}
		for k, v := range kv {
			e.Fields[k] = v
		}
	}
}

// -------------------- constructors --------------------

func New(code CodeEntry, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Type:    ErrTypeSys,
		Service: ServiceDefault,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func Newf(code CodeEntry, f string, args ...any) *Error {
	return New(code, WithMessage(fmt.Sprintf(f, args...)))
}

// NewBiz builds a business error.
func NewBiz(code CodeEntry, opts ...Option) *Error {
	opts = append([]Option{WithType(ErrTypeBiz)}, opts...)
	return New(code, opts...)
}

// NewSys builds a system error.
func NewSys(code CodeEntry, opts ...Option) *Error {
	opts = append([]Option{WithType(ErrTypeSys)}, opts...)
	return New(code, opts...)
}

// -------------------- Wrap --------------------

func Wrap(err error, code CodeEntry, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		// already an *Error: only apply the options
		for _, opt := range opts {
			opt(e)
		}
		return e
	}

	opts = append([]Option{WithCause(err)}, opts...)
	return New(code, opts...)
}
