package models

import "errors"

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrBudgetExhausted     = errors.New("campaign budget exhausted")
	ErrDuplicateClaim      = errors.New("reward already claimed")
	ErrInsufficientFunds   = errors.New("insufficient funds")
)
