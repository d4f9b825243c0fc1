package weakcache

import "errors"

var (
	ErrFactoryRequired = errors.New("weakcache: factory is required")
	ErrNilValue        = errors.New("weakcache: factory returned nil value")
	ErrWeigherType     = errors.New("weakcache: weigher does not match cache value type")
)
