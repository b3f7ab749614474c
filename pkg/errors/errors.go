package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	// CodeConnection marks the warehouse as unreachable. Fatal to the run.
	CodeConnection Code = "CONNECTION_ERROR"
	// CodePartitionRead marks a single unreadable snapshot partition. The
	// ingestor logs it, counts it, and moves on.
	CodePartitionRead Code = "PARTITION_READ_ERROR"
	// CodeValidation marks a failed data-quality rule. Collected and
	// reported; it only halts the pipeline under assert-mode.
	CodeValidation Code = "VALIDATION_FAILURE"
	// CodeDependency marks a failure in an external collaborator.
	CodeDependency Code = "DEPENDENCY_ERROR"
	CodeInternal   Code = "INTERNAL_ERROR"
)

type Metadata struct {
	Retryable      bool
	AbortsPipeline bool
	Summary        string
}

var metadataByCode = map[Code]Metadata{
	CodeConnection: {
		Retryable:      true,
		AbortsPipeline: true,
		Summary:        "warehouse unreachable",
	},
	CodePartitionRead: {
		Retryable:      true,
		AbortsPipeline: false,
		Summary:        "partition unreadable",
	},
	CodeValidation: {
		Retryable:      false,
		AbortsPipeline: false,
		Summary:        "data-quality rule failed",
	},
	CodeDependency: {
		Retryable:      true,
		AbortsPipeline: true,
		Summary:        "dependency failed",
	},
	CodeInternal: {
		Retryable:      false,
		AbortsPipeline: true,
		Summary:        "internal error",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// AbortsPipeline reports whether err should stop later pipeline stages.
// Unknown errors abort; only codes explicitly marked non-fatal continue.
func AbortsPipeline(err error) bool {
	if err == nil {
		return false
	}
	if typed := As(err); typed != nil {
		return MetadataFor(typed.Code()).AbortsPipeline
	}
	return true
}
