package models

import "errors"

// ErrNotConfigured marks a capability whose credentials or endpoint are missing.
var ErrNotConfigured = errors.New("capability not configured")
