package sharekit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestObjectFromQuery tests extracting the object from a query parameter
func TestObjectFromQuery(t *testing.T) {
	extractor := ObjectFromQuery(ObjectResource, "resource_id")

	t.Run("Parameter present", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/files?resource_id=doc1", nil)

		obj, err := extractor(r)

		assert.NoError(t, err)
		assert.Equal(t, ObjectResource, obj.Kind)
		assert.Equal(t, "doc1", obj.ID)
	})

	t.Run("Parameter missing", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/files", nil)

		_, err := extractor(r)

		assert.ErrorIs(t, err, ErrInvalidPair)
	})
}

// TestObjectFromHeader tests extracting the object from a header
func TestObjectFromHeader(t *testing.T) {
	extractor := ObjectFromHeader(ObjectCommunity, "X-Community-ID")

	t.Run("Header present", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/communities", nil)
		r.Header.Set("X-Community-ID", "product-community")

		obj, err := extractor(r)

		assert.NoError(t, err)
		assert.Equal(t, ObjectCommunity, obj.Kind)
		assert.Equal(t, "product-community", obj.ID)
	})

	t.Run("Header missing", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/communities", nil)

		_, err := extractor(r)

		assert.ErrorIs(t, err, ErrInvalidPair)
	})
}

// TestObjectFromParam tests extracting the object from a path parameter
func TestObjectFromParam(t *testing.T) {
	extractor := ObjectFromParam(ObjectResource, "resourceID")

	t.Run("Path value present", func(t *testing.T) {
		mux := http.NewServeMux()
		var obj ObjectRef
		var extractErr error
		mux.HandleFunc("GET /resources/{resourceID}", func(w http.ResponseWriter, r *http.Request) {
			obj, extractErr = extractor(r)
		})

		r := httptest.NewRequest(http.MethodGet, "/resources/doc1", nil)
		mux.ServeHTTP(httptest.NewRecorder(), r)

		assert.NoError(t, extractErr)
		assert.Equal(t, ObjectResource, obj.Kind)
		assert.Equal(t, "doc1", obj.ID)
	})

	t.Run("Missing everywhere", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/resources/", nil)

		_, err := extractor(r)

		assert.ErrorIs(t, err, ErrInvalidPair)
	})
}

// TestStaticObject tests the constant extractor
func TestStaticObject(t *testing.T) {
	extractor := StaticObject(ObjectGroup, "design-team")

	r := httptest.NewRequest(http.MethodGet, "/anything", nil)
	obj, err := extractor(r)

	assert.NoError(t, err)
	assert.Equal(t, ObjectGroup, obj.Kind)
	assert.Equal(t, "design-team", obj.ID)
}

// TestDefaultErrorHandler tests the HTTP status mapping for engine errors
func TestDefaultErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"missing user", ErrNoUserID, http.StatusUnauthorized},
		{"denial maps to forbidden", ErrInsufficientPrivilege, http.StatusForbidden},
		{"sole owner denial maps to forbidden", ErrCannotRemoveSoleOwner, http.StatusForbidden},
		{"invalid pair maps to bad request", ErrInvalidPair, http.StatusBadRequest},
		{"invalid privilege maps to bad request", ErrInvalidPrivilege, http.StatusBadRequest},
		{"storage failure maps to internal error", ErrStorageFailure, http.StatusInternalServerError},
		{"wrapped denial maps to forbidden", NewError(ErrNotGroupMember, "subject is not a member").WithActor("alice"), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)

			defaultErrorHandler(w, r, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

// TestNewMiddlewareOptions tests the middleware option functions
func TestNewMiddlewareOptions(t *testing.T) {
	t.Run("Custom user ID extractor", func(t *testing.T) {
		mw := NewMiddleware(nil, WithUserIDExtractor(func(r *http.Request) string {
			return r.Header.Get("X-User-ID")
		}))

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-User-ID", "alice")

		assert.Equal(t, "alice", mw.getUserID(r))
	})

	t.Run("Custom error handler", func(t *testing.T) {
		called := false
		mw := NewMiddleware(nil, WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			called = true
			w.WriteHeader(http.StatusTeapot)
		}))

		w := httptest.NewRecorder()
		mw.errorHandler(w, httptest.NewRequest(http.MethodGet, "/", nil), ErrNoUserID)

		assert.True(t, called)
		assert.Equal(t, http.StatusTeapot, w.Code)
	})

	t.Run("Default user ID extractor reads context", func(t *testing.T) {
		mw := NewMiddleware(nil)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(WithUserID(r.Context(), "bob"))

		assert.Equal(t, "bob", mw.getUserID(r))
	})
}

// TestRequirePrivilegeUnauthenticated tests the early rejection path
func TestRequirePrivilegeUnauthenticated(t *testing.T) {
	mw := NewMiddleware(nil)

	handler := mw.RequirePrivilege(PrivilegeView, StaticObject(ObjectResource, "doc1"))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not run without a user")
		}),
	)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestRequirePrivilegeExtractorError tests rejection when no object can be extracted
func TestRequirePrivilegeExtractorError(t *testing.T) {
	mw := NewMiddleware(nil)

	handler := mw.RequirePrivilege(PrivilegeView, ObjectFromQuery(ObjectResource, "resource_id"))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not run without an object")
		}),
	)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(WithUserID(r.Context(), "alice"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestInjectRequestContext tests copying request metadata into the context
func TestInjectRequestContext(t *testing.T) {
	mw := NewMiddleware(nil, WithUserIDExtractor(func(r *http.Request) string {
		return r.Header.Get("X-User-ID")
	}))

	var gotUserID, gotRequestID string
	handler := mw.InjectRequestContext()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserID(r.Context())
		gotRequestID = GetRequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "req-42")
	r.Header.Set("X-User-ID", "alice")

	handler.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "alice", gotUserID)
	assert.Equal(t, "req-42", gotRequestID)
}
