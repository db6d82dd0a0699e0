package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/CreativeUnicorns/prefs"
)

const maskedValue = "********"

// keyView is the JSON form of a defined key and its current value.
type keyView struct {
	Scope       string `json:"scope"`
	Namespace   string `json:"namespace"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
	Sensitive   bool   `json:"sensitive"`
	Default     any    `json:"default"`
	Value       any    `json:"value"`
	Exists      bool   `json:"exists"`
}

type namespaceView struct {
	Scope     string `json:"scope"`
	Namespace string `json:"namespace"`
	Exists    bool   `json:"exists"`
}

type setRequest struct {
	Value json.RawMessage `json:"value"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListKeys lists every defined key with its current value.
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	defs := s.prefs.Definitions()
	views := make([]keyView, 0, len(defs))
	for _, key := range defs {
		view, err := s.view(r, key)
		if err != nil {
			s.respondWithError(w, r, statusFor(err), "Failed to read preference "+key.String(), err)
			return
		}
		views = append(views, view)
	}
	s.respondWithJSON(w, r, http.StatusOK, views)
}

func (s *Server) handleGetPreference(w http.ResponseWriter, r *http.Request) {
	key, ok := s.lookupKey(w, r)
	if !ok {
		return
	}
	view, err := s.view(r, key)
	if err != nil {
		s.respondWithError(w, r, statusFor(err), "Failed to read preference", err)
		return
	}
	s.respondWithJSON(w, r, http.StatusOK, view)
}

func (s *Server) handleSetPreference(w http.ResponseWriter, r *http.Request) {
	key, ok := s.lookupKey(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var req setRequest
	if err := decoder.Decode(&req); err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, "Invalid request payload", err)
		return
	}
	v, err := valueFromJSON(key, req.Value)
	if err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, "Invalid preference value", err)
		return
	}
	if err := s.prefs.Set(r.Context(), key, v); err != nil {
		s.respondWithError(w, r, statusFor(err), "Failed to store preference", err)
		return
	}

	view, err := s.view(r, key)
	if err != nil {
		s.respondWithError(w, r, statusFor(err), "Failed to read preference", err)
		return
	}
	s.respondWithJSON(w, r, http.StatusOK, view)
}

func (s *Server) handleClearPreference(w http.ResponseWriter, r *http.Request) {
	key, ok := s.lookupKey(w, r)
	if !ok {
		return
	}
	if err := s.prefs.Clear(r.Context(), key); err != nil {
		s.respondWithError(w, r, statusFor(err), "Failed to clear preference", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNamespaceExists(w http.ResponseWriter, r *http.Request) {
	key, ok := s.namespaceKey(w, r)
	if !ok {
		return
	}
	exists, err := s.prefs.NamespaceExists(r.Context(), key)
	if err != nil {
		s.respondWithError(w, r, statusFor(err), "Failed to look up namespace", err)
		return
	}
	s.respondWithJSON(w, r, http.StatusOK, namespaceView{
		Scope:     key.Scope().String(),
		Namespace: key.Namespace(),
		Exists:    exists,
	})
}

func (s *Server) handleClearNamespace(w http.ResponseWriter, r *http.Request) {
	key, ok := s.namespaceKey(w, r)
	if !ok {
		return
	}
	if err := s.prefs.ClearNamespace(r.Context(), key); err != nil {
		s.respondWithError(w, r, statusFor(err), "Failed to clear namespace", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlushAll(w http.ResponseWriter, r *http.Request) {
	if err := s.prefs.FlushAll(r.Context()); err != nil {
		s.respondWithError(w, r, statusFor(err), "Failed to flush preferences", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlushScope(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.scope(w, r)
	if !ok {
		return
	}
	if err := s.prefs.Flush(r.Context(), scope); err != nil {
		s.respondWithError(w, r, statusFor(err), "Failed to flush preferences", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSyncScope(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.scope(w, r)
	if !ok {
		return
	}
	if err := s.prefs.Sync(r.Context(), scope); err != nil {
		s.respondWithError(w, r, statusFor(err), "Failed to sync preferences", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) scope(w http.ResponseWriter, r *http.Request) (prefs.Scope, bool) {
	scope, err := prefs.ParseScope(chi.URLParam(r, "scope"))
	if err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, "Invalid scope", err)
		return scope, false
	}
	return scope, true
}

// lookupKey resolves the {scope}/preferences/<namespace>/<name> path to a
// defined key. Only defined keys can be served, since the default decides
// how a value is decoded.
func (s *Server) lookupKey(w http.ResponseWriter, r *http.Request) (prefs.Key, bool) {
	scope, ok := s.scope(w, r)
	if !ok {
		return prefs.Key{}, false
	}
	path := strings.Trim(chi.URLParam(r, "*"), "/")
	namespace, name := "", path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		namespace, name = path[:i], path[i+1:]
	}
	key, found := s.prefs.Lookup(scope, namespace, name)
	if !found {
		s.respondWithError(w, r, http.StatusNotFound, "Preference not defined",
			fmt.Errorf("%w: %s:%s/%s", prefs.ErrNotFound, scope, namespace, name))
		return prefs.Key{}, false
	}
	return key, true
}

func (s *Server) namespaceKey(w http.ResponseWriter, r *http.Request) (prefs.Key, bool) {
	scope, ok := s.scope(w, r)
	if !ok {
		return prefs.Key{}, false
	}
	namespace := strings.Trim(chi.URLParam(r, "*"), "/")
	if err := prefs.ValidatePath(namespace); err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, "Invalid namespace", err)
		return prefs.Key{}, false
	}
	return prefs.NamespaceKey(scope, namespace), true
}

func (s *Server) view(r *http.Request, key prefs.Key) (keyView, error) {
	v, err := s.prefs.Get(r.Context(), key)
	if err != nil {
		return keyView{}, err
	}
	exists, err := s.prefs.Exists(r.Context(), key)
	if err != nil {
		return keyView{}, err
	}
	view := keyView{
		Scope:       key.Scope().String(),
		Namespace:   key.Namespace(),
		Name:        key.Name(),
		Kind:        key.Default().Kind().String(),
		Description: key.Description(),
		Sensitive:   key.Sensitive(),
		Default:     key.Default().Interface(),
		Value:       v.Interface(),
		Exists:      exists,
	}
	if key.Sensitive() {
		view.Value = maskedValue
	}
	return view, nil
}

// valueFromJSON decodes raw into a Value of the same kind, and for objects
// the same type, as key's default.
func valueFromJSON(key prefs.Key, raw json.RawMessage) (prefs.Value, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return prefs.Value{}, fmt.Errorf("%w: missing value", prefs.ErrInvalidValue)
	}
	def := key.Default()
	var err error
	switch def.Kind() {
	case prefs.KindBool:
		var b bool
		if err = json.Unmarshal(raw, &b); err == nil {
			return prefs.Bool(b), nil
		}
	case prefs.KindInt:
		var i int
		if err = json.Unmarshal(raw, &i); err == nil {
			return prefs.Int(i), nil
		}
	case prefs.KindString:
		var str string
		if err = json.Unmarshal(raw, &str); err == nil {
			return prefs.String(str), nil
		}
	case prefs.KindObject:
		ptr := reflect.New(reflect.TypeOf(def.AsObject()))
		if err = json.Unmarshal(raw, ptr.Interface()); err == nil {
			return prefs.Object(ptr.Elem().Interface()), nil
		}
	default:
		err = errors.New("key has no usable default")
	}
	return prefs.Value{}, fmt.Errorf("%w: %s expects %s: %v", prefs.ErrInvalidValue, key, def.Kind(), err)
}

// statusFor maps facade errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case prefs.IsStoreError(err):
		return http.StatusInternalServerError
	case errors.Is(err, prefs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, prefs.ErrInvalidKey),
		errors.Is(err, prefs.ErrInvalidValue),
		errors.Is(err, prefs.ErrInvalidType),
		errors.Is(err, prefs.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondWithError sends a JSON error body of the form
// {"error":{"message":...,"details":...}}.
func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	body := map[string]string{"message": message}
	if err != nil {
		body["details"] = err.Error()
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("API Error", "status", status, "message", message, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("API request rejected", "status", status, "message", message, "path", r.URL.Path, "error", err)
	}
	s.respondWithJSON(w, r, status, map[string]any{"error": body})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, _ *http.Request, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal JSON response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"Failed to marshal response"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
