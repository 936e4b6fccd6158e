package domain

import "errors"

// ErrInvalidRequest indicates a post request that failed decoding or validation
var ErrInvalidRequest = errors.New("invalid post request")

// ErrJournalDisabled is returned when the post journal is not configured
var ErrJournalDisabled = errors.New("post journal disabled")
