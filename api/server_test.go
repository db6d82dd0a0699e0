package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CreativeUnicorns/prefs"
	"github.com/CreativeUnicorns/prefs/cache"
	"github.com/CreativeUnicorns/prefs/storage"
)

const testNamespace = "example.com/editor"

type layout struct {
	Columns int      `json:"columns"`
	Panels  []string `json:"panels"`
}

var (
	themeKey   = prefs.NewUserKey(testNamespace, "theme", prefs.String("light"), prefs.WithDescription("Color theme"))
	toolbarKey = prefs.NewUserKey(testNamespace, "toolbar", prefs.Bool(true))
	workersKey = prefs.NewSystemKey(testNamespace, "workers", prefs.Int(4))
	layoutKey  = prefs.NewUserKey(testNamespace, "layout", prefs.Object(layout{Columns: 1}))
	tokenKey   = prefs.NewUserKey("example.com/sync", "token", prefs.String(""), prefs.Sensitive())
)

func newTestServer(t *testing.T) (*Server, *prefs.Preferences) {
	t.Helper()

	provider, err := prefs.NewProvider(storage.NewMemoryBackend(),
		prefs.WithAppName("editor"),
		prefs.WithUserName("tester"),
	)
	require.NoError(t, err)

	enc, err := prefs.NewEncryptionAdapterWithKey([]byte("this-is-a-32-byte-key-for-test!!"))
	require.NoError(t, err)

	p, err := prefs.New(
		prefs.WithProvider(provider),
		prefs.WithCache(cache.NewMemoryCache()),
		prefs.WithEncryption(enc),
		prefs.WithLogger(prefs.NopLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	for _, k := range []prefs.Key{themeKey, toolbarKey, workersKey, layoutKey, tokenKey} {
		require.NoError(t, p.Define(k))
	}

	s, err := NewServer(Config{Preferences: p, Logger: prefs.NopLogger()})
	require.NoError(t, err)
	return s, p
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(Config{})
	assert.ErrorIs(t, err, prefs.ErrConfiguration)

	s, _ := newTestServer(t)
	assert.Equal(t, ":8080", s.httpServer.Addr)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestPreferenceRoundTrip(t *testing.T) {
	s, p := newTestServer(t)
	path := "/api/v1/user/preferences/example.com/editor/theme"

	rec := do(t, s, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[keyView](t, rec)
	assert.Equal(t, "light", view.Value)
	assert.Equal(t, "light", view.Default)
	assert.Equal(t, "string", view.Kind)
	assert.Equal(t, "Color theme", view.Description)
	assert.False(t, view.Exists)

	rec = do(t, s, http.MethodPut, path, map[string]any{"value": "dark"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = decode[keyView](t, rec)
	assert.Equal(t, "dark", view.Value)
	assert.True(t, view.Exists)

	got, err := p.GetString(context.Background(), themeKey)
	require.NoError(t, err)
	assert.Equal(t, "dark", got)

	rec = do(t, s, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	view = decode[keyView](t, do(t, s, http.MethodGet, path, nil))
	assert.Equal(t, "light", view.Value)
	assert.False(t, view.Exists)
}

func TestSetPreferenceKinds(t *testing.T) {
	s, p := newTestServer(t)
	ctx := context.Background()

	t.Run("bool", func(t *testing.T) {
		rec := do(t, s, http.MethodPut, "/api/v1/user/preferences/example.com/editor/toolbar", map[string]any{"value": false})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got, err := p.GetBool(ctx, toolbarKey)
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("int_in_system_scope", func(t *testing.T) {
		rec := do(t, s, http.MethodPut, "/api/v1/system/preferences/example.com/editor/workers", map[string]any{"value": 12})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got, err := p.GetInt(ctx, workersKey)
		require.NoError(t, err)
		assert.Equal(t, 12, got)
	})

	t.Run("object", func(t *testing.T) {
		body := map[string]any{"value": layout{Columns: 3, Panels: []string{"files", "outline"}}}
		rec := do(t, s, http.MethodPut, "/api/v1/user/preferences/example.com/editor/layout", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got, err := prefs.GetObject[layout](ctx, p, layoutKey)
		require.NoError(t, err)
		assert.Equal(t, layout{Columns: 3, Panels: []string{"files", "outline"}}, got)
	})

	t.Run("wrong_kind", func(t *testing.T) {
		rec := do(t, s, http.MethodPut, "/api/v1/system/preferences/example.com/editor/workers", map[string]any{"value": "many"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid preference value", decode[errorBody](t, rec).Error.Message)
	})

	t.Run("missing_value", func(t *testing.T) {
		rec := do(t, s, http.MethodPut, "/api/v1/user/preferences/example.com/editor/theme", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown_field", func(t *testing.T) {
		rec := do(t, s, http.MethodPut, "/api/v1/user/preferences/example.com/editor/theme", map[string]any{"value": "x", "extra": 1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid request payload", decode[errorBody](t, rec).Error.Message)
	})
}

func TestSensitiveValueMasked(t *testing.T) {
	s, p := newTestServer(t)
	require.NoError(t, p.SetString(context.Background(), tokenKey, "s3cret"))

	rec := do(t, s, http.MethodGet, "/api/v1/user/preferences/example.com/sync/token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[keyView](t, rec)
	assert.True(t, view.Sensitive)
	assert.True(t, view.Exists)
	assert.Equal(t, maskedValue, view.Value)
	assert.NotContains(t, rec.Body.String(), "s3cret")
}

func TestUnknownKeyAndScope(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/v1/user/preferences/example.com/editor/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Preference not defined", decode[errorBody](t, rec).Error.Message)

	// Defined in the user scope only.
	rec = do(t, s, http.MethodGet, "/api/v1/system/preferences/example.com/editor/theme", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/global/preferences/example.com/editor/theme", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid scope", decode[errorBody](t, rec).Error.Message)
}

func TestListKeys(t *testing.T) {
	s, p := newTestServer(t)
	require.NoError(t, p.SetString(context.Background(), themeKey, "dark"))

	rec := do(t, s, http.MethodGet, "/api/v1/keys", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	views := decode[[]keyView](t, rec)
	require.Len(t, views, 5)

	byName := make(map[string]keyView)
	for _, v := range views {
		byName[v.Name] = v
	}
	assert.Equal(t, "dark", byName["theme"].Value)
	assert.True(t, byName["theme"].Exists)
	assert.Equal(t, float64(4), byName["workers"].Value)
	assert.Equal(t, "system", byName["workers"].Scope)
	assert.False(t, byName["toolbar"].Exists)
}

func TestNamespaces(t *testing.T) {
	s, p := newTestServer(t)
	ctx := context.Background()
	path := "/api/v1/user/namespaces/example.com/editor"

	view := decode[namespaceView](t, do(t, s, http.MethodGet, path, nil))
	assert.False(t, view.Exists)
	assert.Equal(t, testNamespace, view.Namespace)

	require.NoError(t, p.SetString(ctx, themeKey, "dark"))
	require.NoError(t, p.SetBool(ctx, toolbarKey, false))
	require.NoError(t, p.SetString(ctx, tokenKey, "keep-me"))

	view = decode[namespaceView](t, do(t, s, http.MethodGet, path, nil))
	assert.True(t, view.Exists)

	rec := do(t, s, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	exists, err := p.Exists(ctx, themeKey)
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = p.Exists(ctx, toolbarKey)
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = p.Exists(ctx, tokenKey)
	require.NoError(t, err)
	assert.True(t, exists, "other namespaces are untouched")

	rec = do(t, s, http.MethodGet, "/api/v1/user/namespaces/a/../b", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFlushAndSync(t *testing.T) {
	s, _ := newTestServer(t)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/api/v1/flush", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/api/v1/user/flush", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/api/v1/system/sync", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/v1/nobody/flush", nil).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"store", &prefs.StoreError{Op: "get", Err: prefs.ErrSerialization}, http.StatusInternalServerError},
		{"not_found", prefs.ErrNotFound, http.StatusNotFound},
		{"invalid_value", prefs.ErrInvalidValue, http.StatusBadRequest},
		{"invalid_key", prefs.ErrInvalidKey, http.StatusBadRequest},
		{"invalid_type", prefs.ErrInvalidType, http.StatusBadRequest},
		{"other", prefs.ErrStorageUnavailable, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
