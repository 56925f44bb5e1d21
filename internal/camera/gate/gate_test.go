package gate

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rizzu97/app/internal/camera/nal"
)

func unit(t *testing.T, header byte, body ...byte) nal.Unit {
	t.Helper()
	u, ok := nal.NewUnit(append([]byte{0x00, 0x00, 0x00, 0x01, header}, body...))
	require.True(t, ok)
	return u
}

func newGate(passUnknown bool) *Gate {
	return New(Options{
		PassUnknown: passUnknown,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestGateSequences(t *testing.T) {
	const (
		sps  = 0x67
		pps  = 0x68
		idr  = 0x65
		p    = 0x41
		sei  = 0x06
		aud  = 0x09
		fake = 0x0C
	)

	tests := []struct {
		name        string
		passUnknown bool
		headers     []byte
		want        []Decision
	}{
		{
			name:    "P before keyframe",
			headers: []byte{sps, pps, p},
			want:    []Decision{ForwardAndResetSession, Forward, Drop},
		},
		{
			name:    "full GOP",
			headers: []byte{sps, pps, idr, p, p},
			want:    []Decision{ForwardAndResetSession, Forward, Forward, Forward, Forward},
		},
		{
			name:    "PPS before SPS",
			headers: []byte{pps, sps, pps},
			want:    []Decision{Drop, ForwardAndResetSession, Forward},
		},
		{
			name:    "IDR before PPS",
			headers: []byte{sps, idr, pps, idr},
			want:    []Decision{ForwardAndResetSession, Drop, Forward, Forward},
		},
		{
			name:    "new SPS requires new keyframe",
			headers: []byte{sps, pps, idr, p, sps, p, pps, p, idr, p},
			want: []Decision{
				ForwardAndResetSession, Forward, Forward, Forward,
				ForwardAndResetSession, Drop, Forward, Drop, Forward, Forward,
			},
		},
		{
			name:    "unknown types dropped",
			headers: []byte{sei, sps, pps, aud, idr, fake},
			want:    []Decision{Drop, ForwardAndResetSession, Forward, Drop, Forward, Drop},
		},
		{
			name:        "unknown types passed after parameter sets",
			passUnknown: true,
			headers:     []byte{sei, sps, pps, aud, idr},
			want:        []Decision{Drop, ForwardAndResetSession, Forward, Forward, Forward},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGate(tt.passUnknown)
			got := make([]Decision, 0, len(tt.headers))
			for _, h := range tt.headers {
				got = append(got, g.Admit(unit(t, h, 0xAA)))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGateDropsShortUnit(t *testing.T) {
	g := newGate(true)
	bare, ok := nal.NewUnit([]byte{0x00, 0x00, 0x01})
	require.True(t, ok)

	assert.Equal(t, Drop, g.Admit(bare))
	assert.Equal(t, uint64(1), g.State().Dropped)
}

func TestGateResetAndState(t *testing.T) {
	g := newGate(false)

	g.Admit(unit(t, 0x67))
	g.Admit(unit(t, 0x68))
	g.Admit(unit(t, 0x65))

	st := g.State()
	assert.True(t, st.HaveSPS)
	assert.True(t, st.HavePPS)
	assert.True(t, st.HaveKeyframe)
	assert.Equal(t, uint64(3), st.Forwarded)
	assert.Equal(t, uint64(1), st.Resets)

	g.Reset()
	st = g.State()
	assert.False(t, st.HaveSPS)
	assert.False(t, st.HavePPS)
	assert.False(t, st.HaveKeyframe)
	assert.Equal(t, uint64(3), st.Forwarded)

	assert.Equal(t, Drop, g.Admit(unit(t, 0x41)))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "drop", Drop.String())
	assert.Equal(t, "forward", Forward.String())
	assert.Equal(t, "forward+reset", ForwardAndResetSession.String())
	assert.Equal(t, "unknown", Decision(9).String())
}
