package avatar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/dfrnproto/dfrnd/internal/httpclient"
)

type memAvatars struct {
	mu   sync.Mutex
	rows map[string][]byte
}

func (m *memAvatars) key(id uuid.UUID, h []byte) string { return id.String() + "/" + string(h) }

func (m *memAvatars) Store(_ context.Context, id uuid.UUID, h []byte, _ string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = map[string][]byte{}
	}
	if _, ok := m.rows[m.key(id, h)]; ok {
		return nil // ON CONFLICT DO NOTHING
	}
	m.rows[m.key(id, h)] = data
	return nil
}

func (m *memAvatars) Has(_ context.Context, id uuid.UUID, h []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[m.key(id, h)]
	return ok, nil
}

func TestFetch_Idempotent(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("jpegbytes"))
	}))
	defer srv.Close()

	repo := &memAvatars{}
	c := New(httpclient.New(2), repo)
	id := uuid.Must(uuid.NewV4())

	require.NoError(t, c.Fetch(context.Background(), id, srv.URL+"/photo.jpg"))
	require.NoError(t, c.Fetch(context.Background(), id, srv.URL+"/photo.jpg"))

	require.Equal(t, 1, hits, "second fetch must not hit the network")
	require.Equal(t, 1, len(repo.rows), "exactly one stored copy")
}

func TestFetch_EmptyURL_NoOp(t *testing.T) {
	repo := &memAvatars{}
	c := New(httpclient.New(2), repo)
	require.NoError(t, c.Fetch(context.Background(), uuid.Must(uuid.NewV4()), ""))
	require.Equal(t, 0, len(repo.rows))
}
