package flow

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlowMovesAllBytes(t *testing.T) {
	payload := strings.Repeat("abcdefgh", 1000) // 8000 bytes
	src := ReaderEndpoint{R: strings.NewReader(payload)}
	var dst bytes.Buffer
	dstEndpoint := WriterEndpoint{W: &dst}

	f, err := New(src, dstEndpoint, 128)
	require.NoError(t, err)

	n, err := f.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, len(payload), n)
	require.Equal(t, payload, dst.String())
}

func TestFlowRejectsNonPositiveBufferSize(t *testing.T) {
	_, err := New(ReaderEndpoint{R: strings.NewReader("")}, WriterEndpoint{W: &bytes.Buffer{}}, 0)
	require.Error(t, err)
}

func TestFlowEmptySource(t *testing.T) {
	src := ReaderEndpoint{R: strings.NewReader("")}
	var dst bytes.Buffer
	f, err := New(src, WriterEndpoint{W: &dst}, 64)
	require.NoError(t, err)

	n, err := f.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}
