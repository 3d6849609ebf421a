package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWebhook(url, auth string) *Webhook {
	w := NewWebhook(url, auth)
	w.retryDelay = 10 * time.Millisecond
	return w
}

func TestWebhook_SuccessfulDelivery(t *testing.T) {
	var received Message
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	require.NoError(t, wh.Notify(context.Background(), testEvent()))
	require.NoError(t, wh.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "CertificateIssued", received.Type)
	assert.Equal(t, "CERT-55555", received.UniqueID)
	assert.Equal(t, int64(9), received.UserID)
}

func TestWebhook_RetryOn500(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	require.NoError(t, wh.Notify(context.Background(), testEvent()))
	wh.Close()

	assert.Equal(t, int32(2), attempts.Load(), "should have retried once after 500")
}

func TestWebhook_NoRetryOn400(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	require.NoError(t, wh.Notify(context.Background(), testEvent()))
	wh.Close()

	assert.Equal(t, int32(1), attempts.Load(), "should not retry on 4xx")
}

func TestWebhook_AuthHeader(t *testing.T) {
	var gotAuth, gotContentType string
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "Authorization: Bearer my-token-123")
	require.NoError(t, wh.Notify(context.Background(), testEvent()))
	wh.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer my-token-123", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
}

func TestWebhook_QueueFullDrops(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	var dropped int
	for i := 0; i < webhookQueueSize+10; i++ {
		if err := wh.Notify(context.Background(), testEvent()); err != nil {
			assert.ErrorIs(t, err, ErrQueueFull)
			dropped++
		}
	}
	assert.Positive(t, dropped)

	close(block)
	wh.Close()
}

func TestWebhook_CloseIsIdempotent(t *testing.T) {
	wh := newTestWebhook("http://127.0.0.1:1", "")
	require.NoError(t, wh.Close())
	require.NoError(t, wh.Close())
}

func TestWebhook_NotifyAfterClose(t *testing.T) {
	wh := newTestWebhook("http://127.0.0.1:1", "")
	require.NoError(t, wh.Close())

	err := wh.Notify(context.Background(), testEvent())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWebhook_ConcurrentNotifyAndClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := wh.Notify(context.Background(), testEvent()); err != nil {
					assert.True(t, errors.Is(err, ErrClosed) || errors.Is(err, ErrQueueFull), "unexpected error: %v", err)
				}
			}
		}()
	}
	require.NoError(t, wh.Close())
	wg.Wait()
}
