package orgx

import "context"

type orgIDKey struct{}
type orgSlugKey struct{}

func WithOrg(ctx context.Context, orgID string, slug string) context.Context {
	ctx = context.WithValue(ctx, orgIDKey{}, orgID)
	return context.WithValue(ctx, orgSlugKey{}, slug)
}

func OrgIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(orgIDKey{}).(string); ok {
		return v
	}
	return ""
}

func OrgSlugFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(orgSlugKey{}).(string); ok {
		return v
	}
	return ""
}
