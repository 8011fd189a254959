package internaltypes

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNoServices       = errors.New("no services enabled; set ENABLE_DINNER or ENABLE_LUNCH to true")
	ErrStoreUnavailable = errors.New("state store unavailable")
)
