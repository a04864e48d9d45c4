package classfile

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error produced by this package matches exactly one of
// them with errors.Is.
var (
	ErrMalformedInput       = errors.New("malformed input")
	ErrUnsupportedConstruct = errors.New("unsupported construct")
	ErrSemanticViolation    = errors.New("semantic violation")
	ErrLinkageFailure       = errors.New("linkage failure")
	ErrVerificationFailure  = errors.New("verification failure")
)

// Specific causes.
var (
	ErrTruncatedInput                = errors.New("truncated input")
	ErrTrailingBytes                 = errors.New("trailing bytes")
	ErrBadMagic                      = errors.New("bad magic")
	ErrUnsupportedVersion            = errors.New("unsupported version")
	ErrInvalidPoolSize               = errors.New("invalid constant pool size")
	ErrInvalidConstantTag            = errors.New("invalid constant tag")
	ErrUnsupportedConstantForVersion = errors.New("unsupported constant for version")
	ErrAttributeLengthMismatch       = errors.New("attribute length mismatch")
	ErrIndexOutOfRange               = errors.New("constant pool index out of range")
	ErrUnexpectedConstantTag         = errors.New("unexpected constant tag")
)

// Names of the JVM errors a failure surfaces as.
const (
	ClassFormatError             = "ClassFormatError"
	UnsupportedClassVersionError = "UnsupportedClassVersionError"
	NoClassDefFoundError         = "NoClassDefFoundError"
	IncompatibleClassChangeError = "IncompatibleClassChangeError"
	NoSuchFieldError             = "NoSuchFieldError"
	NoSuchMethodError            = "NoSuchMethodError"
	IllegalAccessError           = "IllegalAccessError"
	VerifyError                  = "VerifyError"
	ClassCircularityError        = "ClassCircularityError"
)

// Error is a parse failure. It matches both its Kind and its Cause.
type Error struct {
	Kind      error
	Cause     error
	JavaError string
	Message   string
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.JavaError)
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Cause != nil && !strings.Contains(e.Message, e.Cause.Error()) {
		sb.WriteString(" (")
		sb.WriteString(e.Cause.Error())
		sb.WriteString(")")
	}
	return sb.String()
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newError(kind, cause error, javaError, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Cause:     cause,
		JavaError: javaError,
		Message:   fmt.Sprintf(format, args...),
	}
}

func formatError(cause error, format string, args ...any) error {
	return newError(ErrMalformedInput, cause, ClassFormatError, format, args...)
}

func semanticError(format string, args ...any) error {
	return newError(ErrSemanticViolation, nil, ClassFormatError, format, args...)
}

func unsupportedError(cause error, format string, args ...any) error {
	return newError(ErrUnsupportedConstruct, cause, ClassFormatError, format, args...)
}

func noClassDefFoundError(format string, args ...any) error {
	return newError(ErrUnsupportedConstruct, nil, NoClassDefFoundError, format, args...)
}

// TagError reports a constant pool lookup whose entry has the wrong tag.
type TagError struct {
	Index    uint16
	Found    ConstantTag
	Expected []ConstantTag
}

func (e *TagError) Error() string {
	expected := make([]string, len(e.Expected))
	for i, tag := range e.Expected {
		expected[i] = tag.String()
	}
	return fmt.Sprintf("constant pool entry #%d is %s, expected %s",
		e.Index, e.Found, strings.Join(expected, " or "))
}

func (e *TagError) Unwrap() []error {
	return []error{ErrUnexpectedConstantTag, ErrMalformedInput}
}

// IndexError reports a constant pool index outside [0, size).
type IndexError struct {
	Index uint16
	Size  int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("constant pool index %d out of range [0, %d)", e.Index, e.Size)
}

func (e *IndexError) Unwrap() []error {
	return []error{ErrIndexOutOfRange, ErrMalformedInput}
}

// LinkageError is a resolution failure detected while walking the class
// hierarchy, as opposed to one returned by the Resolver.
type LinkageError struct {
	JavaError string
	Message   string
}

func (e *LinkageError) Error() string {
	return e.JavaError + ": " + e.Message
}

func (e *LinkageError) Unwrap() error { return ErrLinkageFailure }

// JavaErrorName returns the JVM error class err surfaces as, or the empty
// string when err did not come from this package.
func JavaErrorName(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.JavaError
	}
	var lerr *LinkageError
	if errors.As(err, &lerr) {
		return lerr.JavaError
	}
	if errors.Is(err, ErrVerificationFailure) {
		return VerifyError
	}
	if errors.Is(err, ErrMalformedInput) {
		return ClassFormatError
	}
	return ""
}
