package config

import "errors"

var (
	ErrInvalidFile   = errors.New("config: invalid yaml")
	ErrInvalidEnv    = errors.New("config: invalid environment override")
	ErrInvalidConfig = errors.New("config: invalid configuration")
)
