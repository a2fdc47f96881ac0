package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"missionboard/api/internal/repos"
	"missionboard/shared/authx"
	"missionboard/shared/httpx"
	"missionboard/shared/orgx"
)

// OrgMiddleware resolves the caller's organization from X-Org-ID or
// X-Org-Slug and cross-checks it against token claims before letting the
// request through.
type OrgMiddleware struct {
	Orgs *repos.OrganizationsRepo
	Skip func(*http.Request) bool
}

func (m OrgMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		orgID := strings.TrimSpace(r.Header.Get("X-Org-ID"))
		orgSlug := strings.TrimSpace(r.Header.Get("X-Org-Slug"))
		if orgID == "" && orgSlug == "" {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "missing organization header", nil)
			return
		}

		if orgSlug != "" {
			if m.Orgs == nil {
				httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "organizations repository not configured", nil)
				return
			}
			record, err := m.Orgs.GetBySlug(r.Context(), orgSlug)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "organization not found", nil)
					return
				}
				httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to resolve organization", nil)
				return
			}
			if orgID != "" && orgID != record.OrganizationID.String() {
				httpx.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", "organization mismatch", nil)
				return
			}
			orgID = record.OrganizationID.String()
			orgSlug = record.Slug
		}

		if auth, ok := authx.FromContext(r.Context()); ok {
			if err := validateOrgClaims(auth.Claims, orgID); err != nil {
				httpx.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
				return
			}
		}

		ctx := orgx.WithOrg(r.Context(), orgID, orgSlug)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validateOrgClaims(claims map[string]any, orgID string) error {
	if claims == nil || orgID == "" {
		return nil
	}
	if v, ok := claims["org_id"]; ok {
		claimOrgID := strings.TrimSpace(fmt.Sprint(v))
		if claimOrgID != "" && claimOrgID != orgID {
			return errors.New("organization claim mismatch")
		}
	}
	if v, ok := claims["orgs"]; ok {
		allowed := map[string]struct{}{}
		switch t := v.(type) {
		case []string:
			for _, item := range t {
				item = strings.TrimSpace(item)
				if item != "" {
					allowed[item] = struct{}{}
				}
			}
		case []any:
			for _, item := range t {
				val := strings.TrimSpace(fmt.Sprint(item))
				if val != "" {
					allowed[val] = struct{}{}
				}
			}
		case string:
			for _, item := range strings.Fields(t) {
				if item != "" {
					allowed[item] = struct{}{}
				}
			}
		default:
			val := strings.TrimSpace(fmt.Sprint(t))
			if val != "" {
				allowed[val] = struct{}{}
			}
		}
		if len(allowed) > 0 {
			if _, ok := allowed[orgID]; !ok {
				return errors.New("organization not allowed")
			}
		}
	}
	return nil
}
