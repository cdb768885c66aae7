package storage

import "errors"

const (
	UniqueViolation = "23505"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrAlreadySubscribed  = errors.New("email is already subscribed to this product")
	ErrSubscriberNotFound = errors.New("subscriber not found")
)
