package node

import (
	"errors"
	"fmt"
)

// Kind classifies provider failures.
type Kind int

const (
	// KindNetwork is a transport-level failure (DNS, TLS, connection reset, timeout).
	KindNetwork Kind = iota + 1
	// KindParse means the response did not match the expected schema.
	KindParse
	// KindAPI means the remote service reported an application-level error.
	KindAPI
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindParse:
		return "parse"
	case KindAPI:
		return "api"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching on Error.Kind.
var (
	ErrNetwork = errors.New("node: network error")
	ErrParse   = errors.New("node: parse error")
	ErrAPI     = errors.New("node: api error")
)

// Error is returned by every Provider operation.
type Error struct {
	Kind   Kind
	Op     string // provider operation, e.g. "get_balance"
	Status int    // HTTP status when known
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("node: %s: %s error", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrParse:
		return e.Kind == KindParse
	case ErrAPI:
		return e.Kind == KindAPI
	}
	return false
}

func networkErr(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

func parseErr(op string, err error) *Error {
	return &Error{Kind: KindParse, Op: op, Err: err}
}

func apiErr(op string, status int, msg string) *Error {
	return &Error{Kind: KindAPI, Op: op, Status: status, Msg: msg}
}
