package attribution

import "errors"

var (
	ErrUnauthorized              = errors.New("attribution: unauthorized")
	ErrUnauthorizedCore          = errors.New("attribution: callback origin is not the registered ledger core")
	ErrCampaignExists            = errors.New("attribution: campaign already registered")
	ErrCampaignNotFound          = errors.New("attribution: campaign not registered")
	ErrInvalidStatusTransition   = errors.New("attribution: invalid status transition")
	ErrInvalidConversionConfigID = errors.New("attribution: invalid conversion config id")
	ErrInvalidConversionType     = errors.New("attribution: conversion type does not match config")
	ErrInvalidReferenceCode      = errors.New("attribution: invalid reference code")
	ErrRecipientNotAllowed       = errors.New("attribution: recipient not allowed")
	ErrMaxConfigsReached         = errors.New("attribution: max conversion configs reached")
	ErrConfigDisabled            = errors.New("attribution: conversion config already disabled")
	ErrZeroAddress               = errors.New("attribution: zero address")
	ErrInvalidAmount             = errors.New("attribution: invalid amount")
	ErrInvalidFeeBps             = errors.New("attribution: fee bps out of range")
	ErrDeadlineNotReached        = errors.New("attribution: attribution deadline not reached")
)
