package medicalrecord

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("medical record not found")
	ErrNotAuthor        = errors.New("only the authoring doctor may change this record")
	ErrInvalidReference = errors.New("patient or doctor does not exist")
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
