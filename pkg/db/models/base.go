package models

import (
	"github.com/google/uuid"
)

// ensureID assigns a random primary key when the caller left it empty.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
