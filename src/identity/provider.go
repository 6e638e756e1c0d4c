package identity

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	cfg "github.com/newnonsick/Nutritional-Information-BE/src/configuration"
)

// Provider is the external identity service. Passwords and sessions live
// there; this service never stores credentials.
type Provider interface {
	SignUp(ctx context.Context, email, password string) error
	SignIn(ctx context.Context, email, password string) (*app.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*app.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
	Verify(ctx context.Context, accessToken string) (*app.User, error)
}

var (
	errInvalidCredentials = app.NewError(app.KindUnauthenticated, "identity.SignIn", "invalid email or password")
	errInvalidToken       = app.NewError(app.KindUnauthenticated, "identity.Verify", "could not validate credentials")
	errInvalidRefresh     = app.NewError(app.KindUnauthenticated, "identity.Refresh", "invalid refresh token")
	errUserExists         = app.NewError(app.KindConflict, "identity.SignUp", "a user with this email already exists")
)

// NewProvider builds the provider selected by AUTH_PROVIDER.
func NewProvider(ctx context.Context, config *cfg.Properties, log logrus.FieldLogger) (Provider, error) {
	switch config.Auth.Provider {
	case "gotrue":
		return NewGoTrueProvider(config.Auth, log), nil
	case "oidc":
		return NewOIDCProvider(ctx, config.Auth, log)
	default:
		return nil, fmt.Errorf("unknown identity provider %q", config.Auth.Provider)
	}
}
