package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnknownPlatform = errors.New("unknown platform")
	ErrUpstream        = errors.New("upstream error")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidArgument = errors.New("invalid argument")
)
