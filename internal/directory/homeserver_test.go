package directory

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paykit-wallet/paykitd/internal/models"
	"github.com/paykit-wallet/paykitd/pkg/logger"
)

// fakeHomeserver stores bodies by URL path and lists directories as
// newline-separated pubky URLs.
type fakeHomeserver struct {
	mu        sync.Mutex
	files     map[string][]byte
	authSeen  []string
	failPaths map[string]int
}

func newFakeHomeserver() *fakeHomeserver {
	return &fakeHomeserver{files: make(map[string][]byte), failPaths: make(map[string]int)}
}

func (f *fakeHomeserver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if code, ok := f.failPaths[r.URL.Path]; ok {
		w.WriteHeader(code)
		return
	}

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.files[r.URL.Path] = body
		f.authSeen = append(f.authSeen, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		if strings.HasSuffix(r.URL.Path, "/") {
			var entries []string
			seenDirs := make(map[string]bool)
			for p := range f.files {
				rest, ok := strings.CutPrefix(p, r.URL.Path)
				if !ok {
					continue
				}
				if sub, _, isDir := strings.Cut(rest, "/"); isDir {
					if !seenDirs[sub] {
						seenDirs[sub] = true
						entries = append(entries, "pubky://"+strings.TrimPrefix(r.URL.Path+sub+"/", "/"))
					}
					continue
				}
				entries = append(entries, "pubky://"+strings.TrimPrefix(p, "/"))
			}
			sort.Strings(entries)
			io.WriteString(w, strings.Join(entries, "\n"))
			return
		}
		body, ok := f.files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(body)
	case http.MethodDelete:
		if _, ok := f.files[r.URL.Path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.files, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, hs *fakeHomeserver) *HomeserverClient {
	t.Helper()
	srv := httptest.NewServer(hs)
	t.Cleanup(srv.Close)
	return NewHomeserverClient(srv.URL, 5*time.Second, logger.NewNop(), WithSession("token"), WithRateLimit(1000, 10))
}

func TestHomeserverPublishFetchListDelete(t *testing.T) {
	hs := newFakeHomeserver()
	client := newTestClient(t, hs)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2"} {
		err := client.Publish(ctx, &models.Record{
			Key:  models.RecordKey{Kind: models.RecordPaymentRequest, OwnerPubkey: "alice", RecipientPubkey: "bob", ID: id},
			Data: []byte(`{"id":"` + id + `"}`),
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"Bearer token", "Bearer token"}, hs.authSeen)

	ids, err := client.ListIDs(ctx, models.RecordPaymentRequest, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, ids)

	rec, err := client.Fetch(ctx, models.RecordKey{Kind: models.RecordPaymentRequest, OwnerPubkey: "alice", RecipientPubkey: "bob", ID: "r1"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.JSONEq(t, `{"id":"r1"}`, string(rec.Data))

	missing, err := client.Fetch(ctx, models.RecordKey{Kind: models.RecordPaymentRequest, OwnerPubkey: "alice", RecipientPubkey: "bob", ID: "nope"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	deleted, err := client.DeleteBatch(ctx, models.RecordPaymentRequest, "alice", "bob", []string{"r1", "r2", "gone"})
	require.NoError(t, err)
	assert.Equal(t, 3, deleted, "missing records count as deleted")

	ids, err = client.ListIDs(ctx, models.RecordPaymentRequest, "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestHomeserverListRecipients(t *testing.T) {
	hs := newFakeHomeserver()
	client := newTestClient(t, hs)
	ctx := context.Background()

	for _, key := range []models.RecordKey{
		{Kind: models.RecordSubscriptionProposal, OwnerPubkey: "alice", RecipientPubkey: "carol", ID: "p1"},
		{Kind: models.RecordSubscriptionProposal, OwnerPubkey: "alice", RecipientPubkey: "bob", ID: "p2"},
		{Kind: models.RecordSubscriptionProposal, OwnerPubkey: "alice", RecipientPubkey: "bob", ID: "p3"},
		{Kind: models.RecordPaymentRequest, OwnerPubkey: "alice", RecipientPubkey: "dave", ID: "r1"},
	} {
		require.NoError(t, client.Publish(ctx, &models.Record{Key: key, Data: []byte(`{}`)}))
	}

	recipients, err := client.ListRecipients(ctx, models.RecordSubscriptionProposal, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, recipients)

	recipients, err = client.ListRecipients(ctx, models.RecordPaymentRequest, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"dave"}, recipients)

	recipients, err = client.ListRecipients(ctx, models.RecordPaymentRequest, "bob")
	require.NoError(t, err)
	assert.Empty(t, recipients)
}

func TestHomeserverErrorsSurface(t *testing.T) {
	hs := newFakeHomeserver()
	client := newTestClient(t, hs)
	ctx := context.Background()

	key := models.RecordKey{Kind: models.RecordSubscriptionProposal, OwnerPubkey: "alice", RecipientPubkey: "bob", ID: "p1"}
	hs.failPaths["/alice"+key.Path()] = http.StatusInternalServerError

	err := client.Publish(ctx, &models.Record{Key: key, Data: []byte(`{}`)})
	assert.Error(t, err)

	err = client.Delete(ctx, key)
	assert.Error(t, err)

	_, err = client.Fetch(ctx, key)
	assert.Error(t, err)
}

func TestHomeserverNoiseEndpoint(t *testing.T) {
	hs := newFakeHomeserver()
	client := newTestClient(t, hs)
	ctx := context.Background()

	endpoint, err := client.FetchNoiseEndpoint(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, endpoint)

	require.NoError(t, client.PublishNoiseEndpoint(ctx, "alice", &models.NoiseEndpoint{Host: "127.0.0.1", Port: 9735, NoisePubkey: "abcd"}))

	endpoint, err = client.FetchNoiseEndpoint(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, endpoint)
	assert.Equal(t, "abcd", endpoint.NoisePubkey)
	assert.Equal(t, 9735, endpoint.Port)
}

func TestMemoryDirectory(t *testing.T) {
	dir := NewMemory()
	ctx := context.Background()

	for _, id := range []string{"b", "a"} {
		require.NoError(t, dir.Publish(ctx, &models.Record{
			Key:  models.RecordKey{Kind: models.RecordSubscriptionProposal, OwnerPubkey: "alice", RecipientPubkey: "bob", ID: id},
			Data: []byte("{}"),
		}))
	}
	require.NoError(t, dir.Publish(ctx, &models.Record{
		Key:  models.RecordKey{Kind: models.RecordPaymentRequest, OwnerPubkey: "alice", RecipientPubkey: "bob", ID: "req"},
		Data: []byte("{}"),
	}))

	ids, err := dir.ListIDs(ctx, models.RecordSubscriptionProposal, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	n, err := dir.DeleteBatch(ctx, models.RecordSubscriptionProposal, "alice", "bob", []string{"a", "zzz"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dir.FailOwner("alice", assert.AnError)
	_, err = dir.ListIDs(ctx, models.RecordSubscriptionProposal, "alice", "bob")
	assert.ErrorIs(t, err, assert.AnError)
	dir.FailOwner("alice", nil)

	ids, err = dir.ListIDs(ctx, models.RecordSubscriptionProposal, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}
