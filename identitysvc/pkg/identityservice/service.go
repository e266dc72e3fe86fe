package identityservice

import (
	"context"

	"github.com/ichigozero/sicatat/identitysvc"
)

// Service is the identity provider. Sign-out and state observation are local
// concerns handled by the session package.
type Service interface {
	SignIn(ctx context.Context, email, password string) (identitysvc.User, error)
	SignUp(ctx context.Context, email, password string) (identitysvc.User, error)
	UpdateProfile(ctx context.Context, user identitysvc.User, displayName string) (identitysvc.User, error)
}
