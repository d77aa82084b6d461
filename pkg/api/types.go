package api

import (
	"time"

	"github.com/rubiojr/datacatalog/pkg/catalog"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// EntryResponse is a stored entry with the ID it is filed under.
type EntryResponse struct {
	ID     string        `json:"_id"`
	Source catalog.Entry `json:"_source"`
}

// LoadResponse summarizes a bulk load.
type LoadResponse struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}
