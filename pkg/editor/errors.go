package editor

import (
	"errors"
)

var (
	ErrWrongCardType  = errors.New("node holds a different card type")
	ErrCardNotFound   = errors.New("card not found")
	ErrButtonNotFound = errors.New("button not found")
	ErrEditorClosed   = errors.New("editor is closed")
	ErrNotImage       = errors.New("file is not an image")
)

func IsWrongCardType(err error) bool {
	return errors.Is(err, ErrWrongCardType)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrCardNotFound) || errors.Is(err, ErrButtonNotFound)
}
