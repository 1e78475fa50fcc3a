package flow

import (
	"errors"

	"github.com/dukex/chatflow/pkg/models"
)

var (
	ErrNodeNotFound      = errors.New("node not found")
	ErrInvalidConnection = errors.New("connection needs a source and a target")
	ErrInvalidChange     = errors.New("invalid change")
	ErrInvalidMode       = errors.New("invalid mode")
	// ErrViewMode rejects drag, connect and delete while the canvas is read-only.
	ErrViewMode = errors.New("flow is in view mode")

	ErrUnknownNodeType = models.ErrUnknownNodeType
)

func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}

func IsViewMode(err error) bool {
	return errors.Is(err, ErrViewMode)
}
