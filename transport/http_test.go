package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/ember/storage"
	"github.com/omalloc/ember/todo"
)

type brokenKV struct{ storage.KV }

func (brokenKV) Set(string, []byte) error { return errors.New("quota exceeded") }

func newTestServer(t *testing.T, kv storage.KV) (http.Handler, *todo.Store) {
	t.Helper()
	store, err := todo.New(kv, todo.WithDeleteDelay(30*time.Millisecond), todo.WithLogger(log.DefaultLogger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewHTTPServer(Option{}, store), store
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, Reply) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out Reply
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestHTTP_Lifecycle(t *testing.T) {
	h, _ := newTestServer(t, storage.NewMemoryStore())

	code, out := do(t, h, http.MethodGet, "/v1/tasks", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, out.Tasks)
	assert.True(t, out.Durable)

	code, out = do(t, h, http.MethodPost, "/v1/tasks", `{"text":"  banana "}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "applied", out.Outcome)
	require.Len(t, out.Tasks, 1)
	assert.Equal(t, "banana", out.Tasks[0].Text)
	id := out.Tasks[0].ID

	_, out = do(t, h, http.MethodPost, "/v1/tasks", `{"text":"   "}`)
	assert.Equal(t, "validation_skipped", out.Outcome)
	assert.Len(t, out.Tasks, 1)

	_, out = do(t, h, http.MethodPost, "/v1/tasks", `{"text":"Apple"}`)
	assert.Len(t, out.Tasks, 2)

	_, out = do(t, h, http.MethodPost, "/v1/tasks/"+id+"/toggle", "")
	assert.True(t, out.Tasks[0].Completed)

	_, out = do(t, h, http.MethodPut, "/v1/tasks/"+id, `{"text":"blueberry"}`)
	assert.Equal(t, "blueberry", out.Tasks[0].Text)

	_, out = do(t, h, http.MethodPut, "/v1/tasks/nope", `{"text":"x"}`)
	assert.Equal(t, "not_found", out.Outcome)

	_, out = do(t, h, http.MethodPost, "/v1/tasks/sort", `{"ascending":true}`)
	assert.Equal(t, "Apple", out.Tasks[0].Text)
	assert.Equal(t, "blueberry", out.Tasks[1].Text)

	_, out = do(t, h, http.MethodGet, "/v1/tasks?q=APP", "")
	require.Len(t, out.Tasks, 1)
	assert.Equal(t, "Apple", out.Tasks[0].Text)

	_, out = do(t, h, http.MethodDelete, "/v1/tasks/"+id, "")
	assert.Equal(t, "delete_scheduled", out.Outcome)
	require.Len(t, out.Tasks, 2)
	assert.True(t, out.Tasks[1].PendingDelete)

	require.Eventually(t, func() bool {
		_, out := do(t, h, http.MethodGet, "/v1/tasks", "")
		return len(out.Tasks) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHTTP_RestoreCancelsDelete(t *testing.T) {
	h, store := newTestServer(t, storage.NewMemoryStore())
	res, err := store.Create("keep")
	require.NoError(t, err)
	id := res.Tasks[0].ID

	_, out := do(t, h, http.MethodDelete, "/v1/tasks/"+id, "")
	assert.Equal(t, "delete_scheduled", out.Outcome)

	_, out = do(t, h, http.MethodPost, "/v1/tasks/"+id+"/restore", "")
	assert.Equal(t, "delete_cancelled", out.Outcome)
	assert.False(t, out.Tasks[0].PendingDelete)

	time.Sleep(80 * time.Millisecond)
	assert.Len(t, store.Tasks(), 1)
}

func TestHTTP_NotDurable(t *testing.T) {
	h, store := newTestServer(t, brokenKV{storage.NewMemoryStore()})

	code, out := do(t, h, http.MethodPost, "/v1/tasks", `{"text":"volatile"}`)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, out.Durable)
	assert.Contains(t, out.Warning, "quota exceeded")
	assert.Len(t, store.Tasks(), 1)
}

func TestHTTP_Reload(t *testing.T) {
	kv := storage.NewMemoryStore()
	h, _ := newTestServer(t, kv)

	require.NoError(t, kv.Set(todo.DefaultKey, []byte(`[{"id":"x","text":"from disk","completed":false}]`)))
	_, out := do(t, h, http.MethodPost, "/v1/tasks/reload", "")
	require.Len(t, out.Tasks, 1)
	assert.Equal(t, "from disk", out.Tasks[0].Text)
}

func TestHTTP_BadBody(t *testing.T) {
	h, _ := newTestServer(t, storage.NewMemoryStore())

	code, _ := do(t, h, http.MethodPost, "/v1/tasks", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, code)
}
