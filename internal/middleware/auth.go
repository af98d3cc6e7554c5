package middleware

import (
	"context"
	"html/template"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-rental/internal/apperr"
	"github.com/ukydev/fleet-rental/internal/auth"
	"github.com/ukydev/fleet-rental/internal/httpx"
	"github.com/ukydev/fleet-rental/internal/models"
	"github.com/ukydev/fleet-rental/internal/policy"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	principalContextKey contextKey = "principal"
	resolvedContextKey  contextKey = "principal_resolved"
)

// OwnershipLoader supplies the facts about the target resource a policy
// rule needs. It runs only for authenticated principals.
type OwnershipLoader func(r *http.Request, p *models.Principal) (policy.Ownership, error)

// Guard resolves the caller of every request and gates protected handlers
// on the access policy. The wrapped handler never runs before the decision.
type Guard struct {
	resolver *auth.Resolver
	log      *logrus.Entry
}

// NewGuard creates a route guard backed by resolver.
func NewGuard(resolver *auth.Resolver, log *logrus.Entry) *Guard {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Guard{resolver: resolver, log: log.WithField("component", "guard")}
}

// Authenticate resolves the principal, if any, and stores it in the request
// context. It never rejects a request.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, r = g.principal(r)
		next.ServeHTTP(w, r)
	})
}

// RequireAccess admits the request only when the policy allows action on
// kind. Unauthenticated callers get 401, denied callers 403 with the reason.
func (g *Guard) RequireAccess(kind policy.Kind, action policy.Action, loader OwnershipLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, r := g.principal(r)
			if err := g.decide(r, p, kind, action, loader); err != nil {
				httpx.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePage is the browser variant of RequireAccess: a denied request
// receives the sign-in page instead of a JSON error. Nothing of the
// protected page is written until the decision is made.
func (g *Guard) RequirePage(kind policy.Kind, action policy.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, r := g.principal(r)
			if err := g.decide(r, p, kind, action, nil); err != nil {
				renderSignIn(w, apperr.HTTPStatus(err), p)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) decide(r *http.Request, p *models.Principal, kind policy.Kind, action policy.Action, loader OwnershipLoader) error {
	var own policy.Ownership
	if p != nil && loader != nil {
		var err error
		own, err = loader(r, p)
		if err != nil {
			return err
		}
	}

	d := policy.Decide(p, kind, action, own)
	if d.Allowed {
		return nil
	}

	fields := logrus.Fields{"kind": kind, "action": action, "reason": d.Reason, "path": r.URL.Path}
	if p != nil {
		fields["principal_id"] = p.ID
	}
	g.log.WithFields(fields).Info("Access denied")

	if d.Reason == policy.ReasonUnauthenticated {
		return apperr.Unauthenticated()
	}
	return apperr.Forbidden(string(d.Reason))
}

// principal returns the caller of r, resolving it at most once per request.
func (g *Guard) principal(r *http.Request) (*models.Principal, *http.Request) {
	if resolved, _ := r.Context().Value(resolvedContextKey).(bool); resolved {
		p, _ := PrincipalFromContext(r.Context())
		return p, r
	}
	var p *models.Principal
	if g.resolver != nil {
		p, _ = g.resolver.Resolve(r)
	}
	return p, r.WithContext(WithPrincipal(r.Context(), p))
}

// WithPrincipal returns a context carrying p as the resolved caller.
// A nil p records an unauthenticated caller.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	ctx = context.WithValue(ctx, resolvedContextKey, true)
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext extracts the resolved principal from the context.
func PrincipalFromContext(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*models.Principal)
	return p, ok && p != nil
}

var signInPage = template.Must(template.New("signin").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Sign in required</title></head>
<body>
<main>
{{if .SignedIn}}<h1>Access denied</h1>
<p>The account {{.Email}} cannot open this page.</p>
{{else}}<h1>Sign in</h1>
<p>This page is only available to fleet staff.</p>
{{end}}<form method="post" action="/api/auth/login">
<label>Email <input type="email" name="email" required></label>
<label>Password <input type="password" name="password" required></label>
<button type="submit">Sign in</button>
</form>
</main>
</body>
</html>
`))

func renderSignIn(w http.ResponseWriter, status int, p *models.Principal) {
	data := struct {
		SignedIn bool
		Email    string
	}{}
	if p != nil {
		data.SignedIn = true
		data.Email = p.Email
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = signInPage.Execute(w, data)
}
