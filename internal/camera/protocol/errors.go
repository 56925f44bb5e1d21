package protocol

import (
	"fmt"

	"github.com/Rizzu97/app/internal/camera/core"
)

// ConnectError reports a failed dial or handshake write.
type ConnectError struct {
	Addr    string
	Variant Variant
	Op      string // "dial" or "handshake"
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Addr, e.Variant, e.Err)
}

// Unwrap exposes both core.ErrConnect and the cause.
func (e *ConnectError) Unwrap() []error {
	return []error{core.ErrConnect, e.Err}
}
