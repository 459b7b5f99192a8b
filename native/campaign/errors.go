package campaign

import "errors"

var (
	ErrZeroHook                = errors.New("campaign: zero hook reference")
	ErrHookNotRegistered       = errors.New("campaign: hook not registered")
	ErrUnauthorized            = errors.New("campaign: unauthorized")
	ErrCampaignExists          = errors.New("campaign: campaign already exists")
	ErrCampaignNotFound        = errors.New("campaign: campaign does not exist")
	ErrInvalidStatus           = errors.New("campaign: invalid campaign status")
	ErrInvalidStatusTransition = errors.New("campaign: invalid status transition")
	ErrInsufficientFunds       = errors.New("campaign: insufficient campaign funds")
	ErrUnsupportedOperation    = errors.New("campaign: operation not supported by hook")
	ErrInvalidAmount           = errors.New("campaign: invalid amount")
	ErrZeroAddress             = errors.New("campaign: zero address")
	ErrInvalidToken            = errors.New("campaign: invalid token")
)
