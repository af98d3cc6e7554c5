package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-rental/internal/models"
)

const defaultOracleTimeout = 3 * time.Second

// Resolver turns an inbound request into a principal by delegating to the
// Oracle. It never fails: anything that cannot be verified, including an
// oracle that does not answer in time, resolves to no principal.
type Resolver struct {
	oracle  Oracle
	timeout time.Duration
	log     *logrus.Entry
}

// NewResolver creates a resolver. A non-positive timeout uses the default.
func NewResolver(oracle Oracle, timeout time.Duration, log *logrus.Entry) *Resolver {
	if timeout <= 0 {
		timeout = defaultOracleTimeout
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{oracle: oracle, timeout: timeout, log: log.WithField("component", "resolver")}
}

type resolution struct {
	principal *models.Principal
	err       error
}

// Resolve returns the verified principal of r, or false when the request is
// unauthenticated. An explicit bearer token takes precedence over the
// session cookie; when a bearer token is present the cookie is not consulted.
func (rs *Resolver) Resolve(r *http.Request) (*models.Principal, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), rs.timeout)
	defer cancel()

	var call func(context.Context) (*models.Principal, error)
	source := "bearer"
	if header := r.Header.Get("Authorization"); header != "" {
		token, err := ExtractBearer(header)
		if err != nil {
			return nil, false
		}
		call = func(ctx context.Context) (*models.Principal, error) {
			return rs.oracle.VerifyBearerToken(ctx, token)
		}
	} else {
		cookies := r.Cookies()
		if len(cookies) == 0 {
			return nil, false
		}
		source = "cookie"
		call = func(ctx context.Context) (*models.Principal, error) {
			return rs.oracle.SessionFromCookies(ctx, cookies)
		}
	}

	// Buffered so a late oracle answer never blocks its goroutine.
	done := make(chan resolution, 1)
	go func() {
		p, err := call(ctx)
		done <- resolution{principal: p, err: err}
	}()

	select {
	case <-ctx.Done():
		rs.log.WithFields(logrus.Fields{"source": source, "timeout": rs.timeout}).Warn("Identity oracle did not answer in time")
		return nil, false
	case res := <-done:
		if res.err != nil || res.principal == nil || res.principal.ID == "" {
			if res.err != nil {
				rs.log.WithError(res.err).WithField("source", source).Debug("Credential rejected")
			}
			return nil, false
		}
		p := *res.principal
		p.Role = models.NormalizeRole(string(p.Role))
		return &p, true
	}
}
