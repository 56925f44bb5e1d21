package util

import (
	"fmt"
	"strings"
)

// HexPreview formats up to n leading bytes of b as "5F 6F 00", appending
// "..." when b is longer.
func HexPreview(b []byte, n int) string {
	if n > len(b) {
		n = len(b)
	}
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b[i])
	}
	if len(b) > n {
		sb.WriteString(" ...")
	}
	return sb.String()
}
