package application

import (
	"context"
	"net/http"
	"strings"

	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"
)

//User is an authenticated admin together with the permission resolved for them
type User struct {
	Email      string            `json:"email"`
	Permission models.Permission `json:"-"`
}

//Resolver maps an email address to a permission
type Resolver interface {
	Resolve(ctx context.Context, email string) models.Permission
	Invalidate(ctx context.Context, email string)
}

type userCtxKey struct {
	name string
}

var userKey = &userCtxKey{"user"}

//UserFromContext returns the user stored by the identity middleware
func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userKey).(User)
	return user, ok
}

func withUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

//Identity reads the authenticated email from the given request header, resolves
//its permission and stores the user in the request context. Requests without an
//email, from outside the allowed domain, or without any permission are refused.
func Identity(header, allowedDomain string, resolver Resolver, log logging.Logger) func(http.Handler) http.Handler {
	domain := strings.ToLower(strings.TrimPrefix(allowedDomain, "@"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := strings.ToLower(strings.TrimSpace(r.Header.Get(header)))
			if email == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Authentication required"})
				return
			}

			if domain != "" && !strings.HasSuffix(email, "@"+domain) {
				log.Warnf("refusing %s from outside %s", email, domain)
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error":   "Access denied",
					"message": "Only " + domain + " accounts may use the admin interface",
				})
				return
			}

			perm := resolver.Resolve(r.Context(), email)
			if perm.IsNone() {
				log.Infof("%s has no signage permissions", email)
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error":   "Access denied",
					"message": "You are not a member of any signage admin group",
				})
				return
			}

			ctx := withUser(r.Context(), User{Email: email, Permission: perm})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
