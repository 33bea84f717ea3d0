package testutil

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RandomEmail returns a unique email address.
func RandomEmail() string {
	return fmt.Sprintf("user-%s@example.com", strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
