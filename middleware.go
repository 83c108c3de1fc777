package sharekit

import (
	"errors"
	"net/http"
)

// ErrNoUserID indicates the request carried no authenticated user identity.
var ErrNoUserID = errors.New("no user ID in request")

// Middleware provides HTTP middleware for privilege checking. The subject of
// every check is the authenticated user extracted from the request; the
// object comes from an ObjectExtractor.
type Middleware struct {
	service      *Service
	getUserID    func(*http.Request) string
	errorHandler func(http.ResponseWriter, *http.Request, error)
}

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware)

// NewMiddleware creates a new Middleware instance.
//
// Example:
//
//	mw := sharekit.NewMiddleware(service,
//	    sharekit.WithUserIDExtractor(func(r *http.Request) string {
//	        return r.Header.Get("X-User-ID")
//	    }),
//	)
func NewMiddleware(service *Service, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		service:      service,
		getUserID:    defaultGetUserID,
		errorHandler: defaultErrorHandler,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithUserIDExtractor sets a custom function to extract user ID from request.
func WithUserIDExtractor(fn func(*http.Request) string) MiddlewareOption {
	return func(m *Middleware) {
		m.getUserID = fn
	}
}

// WithErrorHandler sets a custom error handler for middleware.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(m *Middleware) {
		m.errorHandler = fn
	}
}

func defaultGetUserID(r *http.Request) string {
	return GetUserID(r.Context())
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNoUserID):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case IsDenied(err):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, ErrInvalidPair) || errors.Is(err, ErrInvalidPrivilege):
		http.Error(w, "Bad Request", http.StatusBadRequest)
	default:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// ObjectRef names the object side of a privilege check.
type ObjectRef struct {
	Kind ObjectKind
	ID   string
}

// ObjectExtractor extracts the checked object from an HTTP request.
type ObjectExtractor func(*http.Request) (ObjectRef, error)

// ObjectFromParam creates an ObjectExtractor that reads the object ID from a
// URL path parameter. Compatible with net/http 1.22 routing patterns.
//
// Example:
//
//	// For route /resources/{resourceID}
//	mw.RequirePrivilege(sharekit.PrivilegeView, sharekit.ObjectFromParam(sharekit.ObjectResource, "resourceID"))
func ObjectFromParam(kind ObjectKind, paramName string) ObjectExtractor {
	return func(r *http.Request) (ObjectRef, error) {
		id := r.PathValue(paramName)
		if id == "" {
			if v := r.Context().Value(paramName); v != nil {
				if s, ok := v.(string); ok {
					id = s
				}
			}
		}
		if id == "" {
			return ObjectRef{}, NewError(ErrInvalidPair, "object ID not found in request")
		}
		return ObjectRef{Kind: kind, ID: id}, nil
	}
}

// ObjectFromQuery creates an ObjectExtractor that reads the object ID from a
// query parameter.
//
// Example:
//
//	// For route /api/files?resource_id=res_123
//	mw.RequirePrivilege(sharekit.PrivilegeChange, sharekit.ObjectFromQuery(sharekit.ObjectResource, "resource_id"))
func ObjectFromQuery(kind ObjectKind, queryParam string) ObjectExtractor {
	return func(r *http.Request) (ObjectRef, error) {
		id := r.URL.Query().Get(queryParam)
		if id == "" {
			return ObjectRef{}, NewError(ErrInvalidPair, "object ID not found in query")
		}
		return ObjectRef{Kind: kind, ID: id}, nil
	}
}

// ObjectFromHeader creates an ObjectExtractor that reads the object ID from a
// header.
//
// Example:
//
//	// For header X-Community-ID: c_123
//	mw.RequirePrivilege(sharekit.PrivilegeView, sharekit.ObjectFromHeader(sharekit.ObjectCommunity, "X-Community-ID"))
func ObjectFromHeader(kind ObjectKind, headerName string) ObjectExtractor {
	return func(r *http.Request) (ObjectRef, error) {
		id := r.Header.Get(headerName)
		if id == "" {
			return ObjectRef{}, NewError(ErrInvalidPair, "object ID not found in header")
		}
		return ObjectRef{Kind: kind, ID: id}, nil
	}
}

// StaticObject creates an ObjectExtractor that always returns the same
// object. Useful for singleton resources.
func StaticObject(kind ObjectKind, id string) ObjectExtractor {
	return func(r *http.Request) (ObjectRef, error) {
		return ObjectRef{Kind: kind, ID: id}, nil
	}
}

// RequirePrivilege creates middleware that requires the authenticated user's
// effective privilege over the extracted object to grant the given level.
//
// Example:
//
//	router.Handle("POST /resources/{resourceID}",
//	    mw.RequirePrivilege(sharekit.PrivilegeChange, sharekit.ObjectFromParam(sharekit.ObjectResource, "resourceID"))(updateHandler))
func (m *Middleware) RequirePrivilege(level PrivilegeCode, extractor ObjectExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := m.getUserID(r)
			if userID == "" {
				m.errorHandler(w, r, ErrNoUserID)
				return
			}

			obj, err := extractor(r)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			var p PrivilegeCode
			switch obj.Kind {
			case ObjectResource:
				p, err = m.service.resolver.ResourcePrivilege(ctx, userID, obj.ID)
			case ObjectGroup:
				p, err = m.service.resolver.GroupPrivilege(ctx, userID, obj.ID)
			case ObjectCommunity:
				p, err = m.service.resolver.CommunityPrivilege(ctx, userID, obj.ID)
			default:
				err = NewError(ErrInvalidPair, "unknown object kind")
			}
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			if !p.Grants(level) {
				m.errorHandler(w, r, NewError(ErrInsufficientPrivilege, "missing required privilege").
					WithActor(userID).
					WithPrivilege(level))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(ctx, userID)))
		})
	}
}

// RequireOwner creates middleware that requires OWNER over the extracted
// object.
func (m *Middleware) RequireOwner(extractor ObjectExtractor) func(http.Handler) http.Handler {
	return m.RequirePrivilege(PrivilegeOwner, extractor)
}

// InjectRequestContext creates middleware that copies the request ID header
// and the authenticated user ID into the context for downstream handlers and
// zone-of-influence events.
//
// Example:
//
//	router.Use(mw.InjectRequestContext())
func (m *Middleware) InjectRequestContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
				ctx = WithRequestID(ctx, requestID)
			}
			if userID := m.getUserID(r); userID != "" {
				ctx = WithUserID(ctx, userID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
