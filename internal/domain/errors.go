package domain

import "errors"

var (
	// ErrSubscriptionFailed is returned when subscription to events fails
	ErrSubscriptionFailed = errors.New("subscription failed")

	// ErrInvalidEvent is returned when an event payload is malformed
	ErrInvalidEvent = errors.New("invalid event")

	// ErrUnknownContract is returned when an event comes from a contract that is not part of any deployment
	ErrUnknownContract = errors.New("unknown contract")

	// ErrCallReverted is returned when a contract read reverts or the function does not exist
	ErrCallReverted = errors.New("contract call reverted")

	// ErrInvalidDeployment is returned when the deployment table fails validation
	ErrInvalidDeployment = errors.New("invalid deployment")

	// ErrAliasCycle is returned when the alias table maps an address back onto itself
	ErrAliasCycle = errors.New("alias cycle")
)
