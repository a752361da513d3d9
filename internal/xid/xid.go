package xid

import "github.com/google/uuid"

// New returns a random identifier such as "cus-3f1c...".
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
