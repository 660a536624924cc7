package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID prefixed with a module name.
// Every record in the system carries a context-specific prefix ("rsv_", "sga_",
// "ent_", "evt_") so an id alone tells an operator what kind of record it names.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// DeterministicUUIDWithSuffix derives the same prefixed id from the same parts
// every time. Records written by re-runnable work use these so a repeat of the
// write lands on the unique id of the first attempt instead of minting a new
// row.
func DeterministicUUIDWithSuffix(module string, parts ...string) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s_%s", module, id.String())
}
