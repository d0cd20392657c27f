// Package auth resolves bearer API keys to identities and enforces
// per-route permissions.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/models"
)

// Permission names an operation a caller may perform.
type Permission string

const (
	UploadFile          Permission = "UPLOAD_FILE"
	GetFiles            Permission = "GET_FILES"
	GetFile             Permission = "GET_FILE"
	DeleteFile          Permission = "DELETE_FILE"
	DownloadFile        Permission = "DOWNLOAD_FILE"
	ParseFile           Permission = "PARSE_FILE"
	GetParseStatus      Permission = "GET_PARSE_STATUS"
	CancelTask          Permission = "CANCEL_TASK"
	BatchParseFiles     Permission = "BATCH_PARSE_FILES"
	GetBatchParseStatus Permission = "GET_BATCH_PARSE_STATUS"

	// All grants every permission.
	All Permission = "*"
)

// ContextKey is used to store user information in the request context
type ContextKey string

const (
	identityKey ContextKey = "identity"

	AuthHeaderName = "Authorization"
)

var ErrNoIdentity = errors.New("no authenticated identity")

// Identity is an authenticated caller.
type Identity struct {
	UserID      string
	Permissions map[Permission]struct{}
}

func (id Identity) Has(p Permission) bool {
	if _, ok := id.Permissions[All]; ok {
		return true
	}

	_, ok := id.Permissions[p]

	return ok
}

// Keys maps API keys to identities. Keys are held as SHA-256 digests.
type Keys struct {
	byDigest map[[sha256.Size]byte]Identity
}

// ParseKeys reads a key table of the form
//
//	key1=alice:UPLOAD_FILE|PARSE_FILE,key2=bob:*
func ParseKeys(s string) (*Keys, error) {
	k := &Keys{byDigest: make(map[[sha256.Size]byte]Identity)}

	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		key, rest, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid api key entry %q", entry)
		}

		user, perms, _ := strings.Cut(rest, ":")
		if user == "" {
			return nil, fmt.Errorf("api key entry %q has no user", entry)
		}

		var list []Permission
		for _, p := range strings.Split(perms, "|") {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, Permission(strings.ToUpper(p)))
			}
		}

		k.Add(key, user, list...)
	}

	return k, nil
}

// Add registers key for user with the given permissions.
func (k *Keys) Add(key, user string, perms ...Permission) {
	id := Identity{UserID: user, Permissions: make(map[Permission]struct{}, len(perms))}
	for _, p := range perms {
		id.Permissions[p] = struct{}{}
	}

	k.byDigest[sha256.Sum256([]byte(key))] = id
}

func (k *Keys) Len() int { return len(k.byDigest) }

// Users lists the distinct users in the table.
func (k *Keys) Users() []string {
	seen := make(map[string]struct{})
	for _, id := range k.byDigest {
		seen[id.UserID] = struct{}{}
	}

	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}

	sort.Strings(users)

	return users
}

func (k *Keys) lookup(key string) (Identity, bool) {
	id, ok := k.byDigest[sha256.Sum256([]byte(key))]
	return id, ok
}

// BearerTokenMiddleware authenticates requests with a bearer API key and
// stores the identity in the request context.
func BearerTokenMiddleware(keys *Keys, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get(AuthHeaderName)
			if authHeader == "" {
				SendError(w, http.StatusUnauthorized, "Missing authentication token")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || scheme != "Bearer" || token == "" {
				SendError(w, http.StatusUnauthorized, "Invalid authentication token format")
				return
			}

			id, ok := keys.lookup(token)
			if !ok {
				log.Info("authentication failed", zap.String("method", r.Method), zap.String("path", r.URL.Path))
				SendError(w, http.StatusUnauthorized, "Invalid authentication token")

				return
			}

			if slot, ok := r.Context().Value(slotKey{}).(*Identity); ok {
				*slot = id
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequirePermission rejects callers lacking p with 403.
func RequirePermission(p Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := IdentityFrom(r.Context())
			if err != nil {
				SendError(w, http.StatusUnauthorized, "User not authenticated")
				return
			}

			if !id.Has(p) {
				SendError(w, http.StatusForbidden, fmt.Sprintf("missing permission %s", p))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type slotKey struct{}

// WithSlot returns a context whose slot is filled by BearerTokenMiddleware
// further down the chain, so outer middleware can see who the caller was.
func WithSlot(ctx context.Context) (context.Context, *Identity) {
	slot := &Identity{}
	return context.WithValue(ctx, slotKey{}, slot), slot
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFrom(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, ErrNoIdentity
	}

	return id, nil
}

// GetUserID retrieves the user ID from the request context
func GetUserID(ctx context.Context) (string, error) {
	id, err := IdentityFrom(ctx)
	if err != nil {
		return "", err
	}

	return id.UserID, nil
}

// SendError writes a JSON error response.
func SendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	_ = json.NewEncoder(w).Encode(models.APIError{Code: code, Message: message})
}
