// Package netconf carries the RFC 6241 Appendix A error taxonomy used by
// every layer of the engine, from schema resolution down to the wire
// encoders, so a single type can be wrapped with %w all the way up to the
// front-end that renders it as an <rpc-error> or a RESTCONF error object.
package netconf

import "fmt"

// ErrorType is the RFC 6241 Appendix A error-type enumeration.
type ErrorType string

const (
	ErrorTypeTransport  ErrorType = "transport"
	ErrorTypeRPC        ErrorType = "rpc"
	ErrorTypeProtocol   ErrorType = "protocol"
	ErrorTypeApplication ErrorType = "application"
)

// ErrorTag is the RFC 6241 Appendix A error-tag enumeration.
type ErrorTag string

const (
	ErrorTagInUse                ErrorTag = "in-use"
	ErrorTagInvalidValue         ErrorTag = "invalid-value"
	ErrorTagTooBig               ErrorTag = "too-big"
	ErrorTagMissingAttribute     ErrorTag = "missing-attribute"
	ErrorTagBadAttribute         ErrorTag = "bad-attribute"
	ErrorTagUnknownAttribute     ErrorTag = "unknown-attribute"
	ErrorTagMissingElement       ErrorTag = "missing-element"
	ErrorTagBadElement           ErrorTag = "bad-element"
	ErrorTagUnknownElement       ErrorTag = "unknown-element"
	ErrorTagUnknownNamespace     ErrorTag = "unknown-namespace"
	ErrorTagAccessDenied         ErrorTag = "access-denied"
	ErrorTagLockDenied           ErrorTag = "lock-denied"
	ErrorTagResourceDenied       ErrorTag = "resource-denied"
	ErrorTagRollbackFailed       ErrorTag = "rollback-failed"
	ErrorTagDataExists           ErrorTag = "data-exists"
	ErrorTagDataMissing          ErrorTag = "data-missing"
	ErrorTagOperationNotSupported ErrorTag = "operation-not-supported"
	ErrorTagOperationFailed      ErrorTag = "operation-failed"
	ErrorTagMalformedMessage     ErrorTag = "malformed-message"
	ErrorTagTooManyElements      ErrorTag = "too-many-elements"
)

// ErrorSeverity is the RFC 6241 Appendix A error-severity enumeration.
type ErrorSeverity string

const (
	SeverityError   ErrorSeverity = "error"
	SeverityWarning ErrorSeverity = "warning"
)

// RPCError is the structured error every component returns so the
// front-end can render an <rpc-error> or RESTCONF error object without
// guessing at the taxonomy from a plain string.
type RPCError struct {
	Type     ErrorType
	Tag      ErrorTag
	Severity ErrorSeverity
	// Path is the offending instance XPath, when known (spec.md §7
	// "Propagation": validation and type errors are reported with the
	// offending instance XPath).
	Path    string
	Message string
	// Info carries tag-specific data, e.g. the holder session id for
	// lock-denied, rendered as <error-info> children.
	Info map[string]string
	Err  error
}

func (e *RPCError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s (%s): %s [%s]", e.Tag, e.Type, e.Message, e.Path)
	}
	return fmt.Sprintf("%s (%s): %s", e.Tag, e.Type, e.Message)
}

func (e *RPCError) Unwrap() error { return e.Err }

// New builds an error-severity RPCError with the given type/tag/message.
func New(typ ErrorType, tag ErrorTag, format string, args ...interface{}) *RPCError {
	return &RPCError{Type: typ, Tag: tag, Severity: SeverityError, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an RPCError that carries an underlying error via %w semantics.
func Wrap(typ ErrorType, tag ErrorTag, err error, format string, args ...interface{}) *RPCError {
	return &RPCError{Type: typ, Tag: tag, Severity: SeverityError, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithPath returns a copy of e with Path set, for errors produced before
// the offending instance path was known (e.g. deep in a recursive walk).
func (e *RPCError) WithPath(path string) *RPCError {
	cp := *e
	cp.Path = path
	return &cp
}

// AsRPCError unwraps err looking for an *RPCError, the way callers across
// this module check whether a lower layer already classified a failure.
func AsRPCError(err error) (*RPCError, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if re, ok := err.(*RPCError); ok {
			return re, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// ExitCode maps an RPCError (or nil) to the CLI exit codes of spec.md §6.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if re, ok := AsRPCError(err); ok {
		switch re.Tag {
		case ErrorTagAccessDenied, ErrorTagMalformedMessage:
			return 255
		default:
			return 1
		}
	}
	return 1
}
