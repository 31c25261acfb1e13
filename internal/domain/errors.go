package domain

import "errors"

var (
	ErrInvalidID           = errors.New("invalid id")
	ErrInvalidRequestID    = errors.New("invalid request id")
	ErrInvalidActivityType = errors.New("invalid activity type")
	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidTitle        = errors.New("invalid title")
	ErrInvalidDisplayName  = errors.New("invalid display name")
)
