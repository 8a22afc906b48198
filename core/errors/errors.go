package errors

import stderrors "errors"

// Category groups module errors by the kind of precondition that failed.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryAuthorization
	CategoryValidation
	CategoryState
	CategoryTiming
)

func (c Category) String() string {
	switch c {
	case CategoryAuthorization:
		return "authorization"
	case CategoryValidation:
		return "validation"
	case CategoryState:
		return "state"
	case CategoryTiming:
		return "timing"
	default:
		return "unknown"
	}
}

// Error is a module-scoped failure with a stable numeric code. Values are
// declared once per module as sentinels and compared with errors.Is.
type Error struct {
	Module   string
	Code     uint32
	Category Category
	msg      string
}

// New declares a module error.
func New(module string, code uint32, category Category, msg string) *Error {
	return &Error{Module: module, Code: code, Category: category, msg: msg}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Module == "" {
		return e.msg
	}
	return e.Module + ": " + e.msg
}

// Message returns the error text without the module prefix.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.msg
}

// CodeOf extracts the module code from err, if it wraps a module error.
func CodeOf(err error) (uint32, bool) {
	var modErr *Error
	if stderrors.As(err, &modErr) && modErr != nil {
		return modErr.Code, true
	}
	return 0, false
}

// CategoryOf extracts the failure category from err.
func CategoryOf(err error) Category {
	var modErr *Error
	if stderrors.As(err, &modErr) && modErr != nil {
		return modErr.Category
	}
	return CategoryUnknown
}

// ModuleOf returns the module that produced err, or "" for infrastructure
// failures.
func ModuleOf(err error) string {
	var modErr *Error
	if stderrors.As(err, &modErr) && modErr != nil {
		return modErr.Module
	}
	return ""
}
