package urlfetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/urlfetch"
)

func TestNewUsesHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Method", r.Method)
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	d := urlfetch.New(server.URL, urlfetch.WithBody([]byte("q=1")))
	var finished atomic.Int32
	d.Subscribe(urlfetch.SignalDidFinish, func(*urlfetch.Download) { finished.Add(1) })

	require.NoError(t, d.Start(context.Background()))
	d.Wait()

	require.NoError(t, d.Err())
	assert.Equal(t, urlfetch.StateFinished, d.State())
	assert.Equal(t, http.MethodPost, d.ResponseHeader().Get("X-Method"))
	assert.Equal(t, "payload", string(d.Bytes()))
	assert.EqualValues(t, 1, finished.Load())
}

func TestNewToFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("on disk"))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "out.txt")
	d := urlfetch.New(server.URL, urlfetch.ToFile(path))
	require.NoError(t, d.Start(context.Background()))
	d.Wait()

	require.NoError(t, d.Err())
	assert.Equal(t, path, d.ResultPath())
	assert.Nil(t, d.Bytes())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "on disk", string(data))
}

func TestWithTransportOverridesDefault(t *testing.T) {
	called := false
	tr := urlfetch.TransportFunc(func(_ context.Context, req *urlfetch.Request, r urlfetch.Receiver) error {
		called = true
		if err := r.Connected(http.StatusNoContent, nil); err != nil {
			return err
		}
		return nil
	})

	d := urlfetch.New("https://example.invalid/", urlfetch.WithTransport(tr))
	require.NoError(t, d.Start(context.Background()))
	d.Wait()

	assert.True(t, called)
	assert.True(t, d.Downloaded())
	assert.Equal(t, http.StatusNoContent, d.StatusCode())
}

func TestTimeoutThroughFacade(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	d := urlfetch.New(server.URL, urlfetch.WithTimeout(20*time.Millisecond))
	require.NoError(t, d.Start(context.Background()))
	d.Wait()

	assert.True(t, errors.Is(d.Err(), urlfetch.ErrTimeout))
	assert.Equal(t, urlfetch.KindTimeout, urlfetch.KindOf(d.Err()))
}

func TestStartErrors(t *testing.T) {
	assert.ErrorIs(t, urlfetch.New("").Start(context.Background()), urlfetch.ErrNoURL)

	d := urlfetch.New("https://example.invalid/", urlfetch.WithTransport(urlfetch.TransportFunc(
		func(ctx context.Context, _ *urlfetch.Request, _ urlfetch.Receiver) error {
			<-ctx.Done()
			return ctx.Err()
		},
	)))
	require.NoError(t, d.Start(context.Background()))
	assert.ErrorIs(t, d.Start(context.Background()), urlfetch.ErrAlreadyStarted)

	d.Cancel()
	d.Wait()
	assert.Equal(t, urlfetch.StateCanceled, d.State())
	assert.NoError(t, d.Err())
}
