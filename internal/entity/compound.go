package entity

import "github.com/google/uuid"

// Compound is a tracked chemical entity. The code (e.g. "BGB-21447") is its
// immutable identity; name/description are mutable metadata.
type Compound struct {
	ID          uuid.UUID
	Code        string
	Name        string
	Description string
	Active      bool
}
