package persistence

import (
	"errors"
	"fmt"
)

// ErrRecordNotFound indicates no record is stored under the requested key.
var ErrRecordNotFound = errors.New("record not found")

// RecordError wraps backend errors with the operation and key involved.
type RecordError struct {
	Op  string // Operation being performed (e.g., "Get", "Put", "Delete")
	Key string
	Err error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s operation failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewRecordError(op, key string, err error) *RecordError {
	return &RecordError{
		Op:  op,
		Key: key,
		Err: err,
	}
}

// IsRecordNotFound checks if an error indicates the key holds no record.
func IsRecordNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}
