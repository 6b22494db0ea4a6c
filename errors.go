// Package remotedev implements the control-plane core of an
// out-of-process device emulator: the framed channel to a hypervisor
// proxy, the command dispatcher, the PCI device registry, and the
// bootstrap that wires them together.
package remotedev

import (
	"errors"
	"fmt"
	"syscall"
)

// Error represents a structured remotedev error with context and errno
// mapping across four categories: transport, protocol, device, and
// resource errors.
type Error struct {
	Op    string    // operation that failed, e.g. "BAR_READ", "DEVICE_ADD"
	DevID uint32    // device id (0 if not applicable)
	Code  ErrorCode // high-level error category
	Errno syscall.Errno
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.DevID != 0 {
		parts = append(parts, fmt.Sprintf("dev=%d", e.DevID))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("remotedev: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("remotedev: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

// Fields returns e's context as logger-friendly key/value pairs, letting
// a caller attach op/device/category detail to a log line without
// parsing Error's formatted string back apart.
func (e *Error) Fields() []any {
	fields := []any{"op", e.Op, "code", string(e.Code)}
	if e.DevID != 0 {
		fields = append(fields, "dev_id", e.DevID)
	}
	if e.Errno != 0 {
		fields = append(fields, "errno", e.Errno.Error())
	}
	return fields
}

// Fatal reports whether this error's category tears the link down.
func (e *Error) Fatal() bool { return e.Code.Fatal() }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode is the high-level error category used to decide whether an
// error is fatal to the link.
type ErrorCode string

const (
	// CodeTransport covers socket/FD-passing failures: always fatal.
	CodeTransport ErrorCode = "transport error"
	// CodeProtocol covers malformed frames, bad command/FD/payload
	// shapes: always fatal.
	CodeProtocol ErrorCode = "protocol error"
	// CodeDevice covers a device handler rejecting a request: reported
	// back to the proxy, link continues.
	CodeDevice ErrorCode = "device error"
	// CodeResource covers local resource exhaustion (fd limits, OOM):
	// always fatal.
	CodeResource ErrorCode = "resource error"
)

// Fatal reports whether an error of this category tears the link down.
func (c ErrorCode) Fatal() bool {
	return c == CodeTransport || c == CodeProtocol || c == CodeResource
}

// NewError creates a structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewDeviceError creates a device-scoped error (CodeDevice, non-fatal).
func NewDeviceError(op string, devID uint32, msg string) *Error {
	return &Error{Op: op, DevID: devID, Code: CodeDevice, Msg: msg}
}

// WrapError wraps inner with remotedev context under the given code,
// recording a syscall errno in Errno when inner is one. If inner is
// already a *Error, its code, device id, errno and message are kept and
// only Op is replaced.
func WrapError(op string, code ErrorCode, inner error) *Error {
	if inner == nil {
		return nil
	}
	if re, ok := inner.(*Error); ok {
		return &Error{Op: op, DevID: re.DevID, Code: re.Code, Errno: re.Errno, Msg: re.Msg, Inner: re.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: code, Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
