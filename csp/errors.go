package csp

import (
	"fmt"
	"strconv"

	"csp-stack/stack"

	"github.com/pkg/errors"
)

// ErrorKind classifies an Error. Kinds backed by a stack status code share
// its value.
type ErrorKind int

const (
	KindNoMemory            ErrorKind = ErrorKind(stack.ENOMEM)
	KindInvalidArgument     ErrorKind = ErrorKind(stack.EINVAL)
	KindTimedOut            ErrorKind = ErrorKind(stack.ETIMEDOUT)
	KindAlreadyInUse        ErrorKind = ErrorKind(stack.EUSED)
	KindNotSupported        ErrorKind = ErrorKind(stack.ENOTSUP)
	KindBusy                ErrorKind = ErrorKind(stack.EBUSY)
	KindAlreadyDone         ErrorKind = ErrorKind(stack.EALREADY)
	KindReset               ErrorKind = ErrorKind(stack.ERESET)
	KindNoBuffers           ErrorKind = ErrorKind(stack.ENOBUFS)
	KindTransmitFailed      ErrorKind = ErrorKind(stack.ETX)
	KindDriverError         ErrorKind = ErrorKind(stack.EDRIVER)
	KindTryAgain            ErrorKind = ErrorKind(stack.EAGAIN)
	KindAuthFailed          ErrorKind = ErrorKind(stack.EHMAC)
	KindCipherFailed        ErrorKind = ErrorKind(stack.EXTEA)
	KindChecksumFailed      ErrorKind = ErrorKind(stack.ECRC32)
	KindFragmentationFailed ErrorKind = ErrorKind(stack.ESFP)

	// Raised by this package, never by the stack.
	KindConnectFailed      ErrorKind = -1000
	KindNoBuffersAvailable ErrorKind = -1001
	KindUnknown            ErrorKind = -1002
)

var kindNames = map[ErrorKind]string{
	KindNoMemory:            "no memory",
	KindInvalidArgument:     "invalid argument",
	KindTimedOut:            "timed out",
	KindAlreadyInUse:        "already in use",
	KindNotSupported:        "not supported",
	KindBusy:                "busy",
	KindAlreadyDone:         "already done",
	KindReset:               "connection reset",
	KindNoBuffers:           "no buffers",
	KindTransmitFailed:      "transmit failed",
	KindDriverError:         "driver error",
	KindTryAgain:            "try again",
	KindAuthFailed:          "authentication failed",
	KindCipherFailed:        "cipher failed",
	KindChecksumFailed:      "checksum failed",
	KindFragmentationFailed: "fragmentation failed",
	KindConnectFailed:       "connect failed",
	KindNoBuffersAvailable:  "no buffers available",
	KindUnknown:             "unknown error",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "error " + strconv.Itoa(int(k))
}

// Error lets a kind be used as a target for errors.Is.
func (k ErrorKind) Error() string { return k.String() }

type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return "csp: " + e.Kind.String()
	}
	return fmt.Sprintf("csp: %s: %s", e.Message, e.Kind)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of err, or KindUnknown when it carries none.
func KindOf(err error) ErrorKind {
	var kind ErrorKind
	if errors.As(err, &kind) {
		return kind
	}
	return KindUnknown
}

// fromStack maps an error returned by the stack onto an *Error.
func fromStack(err error, msg string) error {
	if err == nil {
		return nil
	}

	var errno stack.Errno
	if errors.As(err, &errno) {
		kind := ErrorKind(errno)
		if _, known := kindNames[kind]; known {
			return &Error{Kind: kind, Message: msg}
		}
	}
	return &Error{Kind: KindUnknown, Message: errors.Wrap(err, msg).Error()}
}

// ErrConnMoved is returned by a Conn whose ownership was handed to a reader,
// writer or packet iterator.
var ErrConnMoved = errors.New("csp: connection moved")
