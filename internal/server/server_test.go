package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motti-landau/kvstore"
	"github.com/motti-landau/kvstore/backend/file"
)

func newTestServer(t *testing.T) (*Server, *kvstore.Store) {
	t.Helper()
	be, err := file.Open(filepath.Join(t.TempDir(), "data.kv"), nil)
	require.NoError(t, err)
	st, err := kvstore.Open(context.Background(), kvstore.Options{
		Namespace:     "test",
		Backend:       be,
		SweepInterval: -1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	return New(st, Options{BodyLimit: "1K"}), st
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStaticRoutes(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = do(t, s, http.MethodGet, "/favicon.ico", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found\n", rec.Body.String())
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	s, st := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/records/upsert", `{"key":"todo","value":"milk","tags":["Home"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "created 'todo'\n", rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/records/upsert", `{"key":"todo","value":"eggs","ttl_minutes":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "updated 'todo'\n", rec.Body.String())

	r, err := st.Get(context.Background(), "todo")
	require.NoError(t, err)
	assert.Equal(t, "eggs", r.Value)
	assert.Equal(t, []string{"home"}, r.Tags, "absent tags keep the current ones")
	require.NotNil(t, r.ExpiresAt)
}

func TestUpsertValidation(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty key", `{"key":"  ","value":"x"}`},
		{"zero ttl", `{"key":"k","value":"x","ttl_minutes":0}`},
		{"negative ttl", `{"key":"k","value":"x","ttl_minutes":-3}`},
		{"bad json", `{"key":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/records/upsert", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestOversizedTTLIsRejected(t *testing.T) {
	s, st := newTestServer(t)
	huge := strconv.FormatUint(kvstore.MaxTTLMinutes+1, 10)

	rec := do(t, s, http.MethodPost, "/api/records/upsert", `{"key":"k","value":"v","ttl_minutes":`+huge+`}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too large")
	_, err := st.Get(context.Background(), "k")
	require.ErrorIs(t, err, kvstore.ErrNotFound)

	_, err = st.Put(context.Background(), "k", "v", kvstore.PutOptions{})
	require.NoError(t, err)
	rec = do(t, s, http.MethodPost, "/api/records/ttl/extend", `{"key":"k","ttl_minutes":`+huge+`}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	r, err := st.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Nil(t, r.ExpiresAt)
}

func TestBodyLimit(t *testing.T) {
	s, _ := newTestServer(t)
	big := `{"key":"k","value":"` + strings.Repeat("x", 4096) + `"}`
	rec := do(t, s, http.MethodPost, "/api/records/upsert", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRecordMutations(t *testing.T) {
	s, st := newTestServer(t)
	ctx := context.Background()
	_, err := st.Put(ctx, "k", "v", kvstore.PutOptions{Tags: []string{"a"}})
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/api/records/tags/add", `{"key":"k","tag":"b"}`)
	assert.Equal(t, "added tag 'b' to 'k'\n", rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/records/tags/add", `{"key":"k","tag":"b"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tag 'b' already exists on 'k'\n", rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/records/tags/remove", `{"key":"k","tag":"a"}`)
	assert.Equal(t, "removed tag 'a' from 'k'\n", rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/records/tags/remove", `{"key":"k","tag":"a"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/records/ttl/extend", `{"key":"k","ttl_minutes":10}`)
	assert.Equal(t, "extended ttl for 'k' by 10 minute(s)\n", rec.Body.String())
	r, err := st.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, r.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), *r.ExpiresAt, time.Minute)

	rec = do(t, s, http.MethodPost, "/api/records/ttl/extend", `{"key":"missing","ttl_minutes":10}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/records/delete", `{"key":"k"}`)
	assert.Equal(t, "deleted 'k'\n", rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/records/delete", `{"key":"k"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTagMutations(t *testing.T) {
	s, st := newTestServer(t)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		_, err := st.Put(ctx, k, k, kvstore.PutOptions{Tags: []string{"old"}})
		require.NoError(t, err)
	}

	rec := do(t, s, http.MethodPost, "/api/tags/rename", `{"from":"old","to":"old"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/tags/rename", `{"from":"old","to":"new"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "renamed tag 'old' to 'new' on 3 record(s)\n", rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/tags/delete", `{"tag":"old"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/tags/delete", `{"tag":"new"}`)
	assert.Equal(t, "deleted tag 'new' from 3 record(s)\n", rec.Body.String())
}

func TestDataPolling(t *testing.T) {
	s, st := newTestServer(t)
	_, err := st.Put(context.Background(), "b", "2", kvstore.PutOptions{})
	require.NoError(t, err)
	_, err = st.Put(context.Background(), "a", "1", kvstore.PutOptions{})
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/data", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got dataResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, st.Version(), got.Version)
	require.Len(t, got.Records, 2)
	assert.Equal(t, "a", got.Records[0].Key)

	v := strconv.FormatUint(got.Version, 10)
	rec = do(t, s, http.MethodGet, "/data?version="+v, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, v, rec.Header().Get(VersionHeader))

	_, err = st.Remove(context.Background(), "a")
	require.NoError(t, err)
	rec = do(t, s, http.MethodGet, "/data?version="+v, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/data?version=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIndexRendersMarkdown(t *testing.T) {
	s, st := newTestServer(t)
	_, err := st.Put(context.Background(), "readme", "# Title\n\n<script>alert(1)</script>", kvstore.PutOptions{Tags: []string{"docs"}})
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, body, "<h1>Title</h1>")
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "docs (1)")
	assert.Contains(t, body, `data-endpoint="/records/upsert"`)
}

func TestStaticPageHasNoControls(t *testing.T) {
	page, err := NewView().Render(kvstore.Snapshot{}, PageOptions{Namespace: "empty"})
	require.NoError(t, err)
	assert.Contains(t, string(page), "No entries stored.")
	assert.NotContains(t, string(page), "data-endpoint")
}
