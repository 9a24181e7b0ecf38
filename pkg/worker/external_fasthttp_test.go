package worker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"parafs/pkg/op"
)

func TestFasthttpSubmitterPostsOpBuffer(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = b
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	submit := NewFasthttpSubmitter(srv.URL, 2*time.Second)
	o := op.New(nil, nil, nil)
	o.Buffer().WriteString("payload")

	err := submit(context.Background(), o)
	require.NoError(t, err)
	require.Equal(t, "payload", string(gotBody))
}

func TestFasthttpSubmitterReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	submit := NewFasthttpSubmitter(srv.URL, 2*time.Second)
	o := op.New(nil, nil, nil)

	err := submit(context.Background(), o)
	require.Error(t, err)
}
