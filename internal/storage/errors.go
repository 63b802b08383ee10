package storage

import "github.com/recall-run/recall/internal/model"

// ErrNotFound is returned by reads when no row matches.
var ErrNotFound = model.ErrNotFound
