package perr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCarriesCodeAndComponent(t *testing.T) {
	err := New("keyval", NotFound, "handle missing")
	require.Equal(t, NotFound, err.Code)
	require.Equal(t, "keyval", err.Component)
	require.Equal(t, "keyval: not_found: handle missing", err.Error())
}

func TestWrapIncludesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap("bytestream", IO, "write failed", cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "disk full")
}

func TestIsMatchesCodeThroughWrapping(t *testing.T) {
	inner := New("dataspace", Exists, "handle already present")
	outer := Wrap("collection", IO, "create failed", inner)

	require.True(t, Is(outer, IO))
	require.False(t, Is(outer, Exists), "Is only inspects the outermost *Error, not nested perr.Errors")
}

func TestCodeOfDefaultsToInternalForPlainErrors(t *testing.T) {
	require.Equal(t, Internal, CodeOf(errors.New("boom")))
	require.Equal(t, Code(0), CodeOf(nil))
}

func TestCodeOfExtractsWrappedCode(t *testing.T) {
	err := New("opmgr", Busy, "queue full")
	require.Equal(t, Busy, CodeOf(err))
}

func TestCodeStringCoversAllConstants(t *testing.T) {
	cases := map[Code]string{
		InvalidArg: "invalid_arg",
		NotFound:   "not_found",
		Exists:     "exists",
		NoMem:      "no_mem",
		Timeout:    "timeout",
		Busy:       "busy",
		Deadlock:   "deadlock",
		NoLock:     "no_lock",
		IO:         "io",
		Range:      "range",
		Canceled:   "canceled",
		Again:      "again",
		Internal:   "internal",
	}
	for code, want := range cases {
		require.Equal(t, want, code.String())
	}
	require.Equal(t, "unknown", Code(999).String())
}
