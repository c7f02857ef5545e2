package campaign

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("campaign not found")
	ErrInvalidRequest  = errors.New("invalid launch request")
	ErrUnknownStage    = errors.New("unknown stage")
	ErrUnknownPlatform = errors.New("unknown platform")

	ErrIllegalTransition = errors.New("illegal status transition")
)

type NotFoundError struct {
	CampaignID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("campaign %s not found", e.CampaignID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NewNotFound(id string) error {
	return &NotFoundError{CampaignID: id}
}
