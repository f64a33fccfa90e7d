package services

import (
	"fmt"

	"cloudbill/internal/models"
)

func requireCaller(c models.Caller) error {
	if c.ID == "" {
		return models.ErrUnauthenticated
	}
	return nil
}

func requireAdmin(c models.Caller) error {
	if err := requireCaller(c); err != nil {
		return err
	}
	if !c.IsAdmin() {
		return fmt.Errorf("%w: admin role required", models.ErrForbidden)
	}
	return nil
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrValidation, fmt.Sprintf(format, args...))
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrPersistence, op, err)
}
