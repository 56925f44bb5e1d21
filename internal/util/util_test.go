package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHexPreview(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		n    int
		want string
	}{
		{name: "empty", in: nil, n: 8, want: ""},
		{name: "short", in: []byte{0x5f, 0x6f, 0x00}, n: 8, want: "5F 6F 00"},
		{name: "truncated", in: []byte{0, 0, 0, 1, 0x67}, n: 4, want: "00 00 00 01 ..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HexPreview(tt.in, tt.n))
		})
	}
}

func TestRenderTableIgnoresANSIWidth(t *testing.T) {
	var buf bytes.Buffer
	RenderTable(&buf, []TableColumn{
		{Header: "PORT", Key: "port"},
		{Header: "RESULT", Key: "result"},
	}, []map[string]string{
		{"port": "40005", "result": "\033[32mopen\033[0m"},
		{"port": "80", "result": "refused"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, "PORT  RESULT", lines[0])
	assert.Equal(t, "----- -------", lines[1])
	assert.Equal(t, "80    refused", lines[3])
}

func TestRenderTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	RenderTable(&buf, []TableColumn{{Header: "A", Key: "a"}}, nil)
	assert.Equal(t, "No data to display\n", buf.String())
}
