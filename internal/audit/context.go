package audit

import "context"

type clientKey struct{}

// NewContext returns a copy of ctx carrying c.
func NewContext(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// FromContext returns the client stored in ctx, or the zero Client
// (unset endpoints, no users) when there is none.
func FromContext(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c
}
