package service

import (
	"errors"

	"github.com/garirakho/gate-backend/internal/apperror"
)

func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}
