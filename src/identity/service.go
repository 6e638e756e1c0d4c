package identity

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	"github.com/newnonsick/Nutritional-Information-BE/src/repository"
)

const verifyTimeout = 15 * time.Second

// Service fronts a Provider with a verified token cache and the password
// change rules.
type Service struct {
	provider Provider
	cache    repository.TokenCache
	cacheTTL time.Duration
	verify   singleflight.Group
	log      logrus.FieldLogger
}

func NewService(provider Provider, cache repository.TokenCache, cacheTTL time.Duration, log logrus.FieldLogger) *Service {
	return &Service{
		provider: provider,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log.WithField("component", "identity"),
	}
}

// Authenticate resolves the user behind an access token. Concurrent checks
// of the same token share one provider call.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*app.User, error) {
	if accessToken == "" {
		return nil, app.NewError(app.KindUnauthenticated, "identity.Authenticate", "missing bearer token")
	}
	user, ok, err := s.cache.Get(ctx, accessToken)
	if err != nil {
		s.log.WithError(err).Warn("token cache lookup failed")
	}
	if ok {
		return user, nil
	}

	result, err, _ := s.verify.Do(accessToken, func() (any, error) {
		// the flight is shared, so one caller going away must not fail the rest
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), verifyTimeout)
		defer cancel()
		verified, err := s.provider.Verify(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		if ttl := s.ttlFor(verified); ttl > 0 {
			if err := s.cache.Put(ctx, accessToken, verified, ttl); err != nil {
				s.log.WithError(err).Warn("token cache store failed")
			}
		}
		return verified, nil
	})
	if err != nil {
		return nil, err
	}
	// callers sharing one flight must not share the pointer
	user = new(app.User)
	*user = *result.(*app.User)
	return user, nil
}

func (s *Service) ttlFor(user *app.User) time.Duration {
	ttl := s.cacheTTL
	if !user.ExpiresAt.IsZero() {
		if remaining := time.Until(user.ExpiresAt); remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}

func (s *Service) SignUp(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return app.NewError(app.KindBadRequest, "identity.SignUp", "email and password are required")
	}
	return s.provider.SignUp(ctx, email, password)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*app.Session, error) {
	if email == "" || password == "" {
		return nil, app.NewError(app.KindBadRequest, "identity.SignIn", "email and password are required")
	}
	return s.provider.SignIn(ctx, email, password)
}

// Refresh exchanges a refresh token. The refreshed session must belong to
// the caller.
func (s *Service) Refresh(ctx context.Context, caller *app.User, refreshToken string) (*app.Session, error) {
	const op = "identity.Refresh"
	if refreshToken == "" {
		return nil, app.NewError(app.KindBadRequest, op, "refresh_token is required")
	}
	session, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	owner := session.User
	if owner == nil {
		if owner, err = s.provider.Verify(ctx, session.AccessToken); err != nil {
			return nil, err
		}
	}
	if owner.ID != caller.ID {
		s.log.WithField("caller", caller.ID).WithField("owner", owner.ID).Warn("refresh token of another user")
		return nil, app.NewError(app.KindNotAuthorized, op, "refresh token belongs to another user")
	}
	return session, nil
}

func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	if err := s.cache.Delete(ctx, accessToken); err != nil {
		s.log.WithError(err).Warn("token cache delete failed")
	}
	return s.provider.SignOut(ctx, accessToken)
}

func (s *Service) ChangePassword(ctx context.Context, accessToken string, user *app.User, oldPassword, newPassword, confirmPassword string) error {
	const op = "identity.ChangePassword"
	if oldPassword == "" || newPassword == "" {
		return app.NewError(app.KindBadRequest, op, "old and new passwords are required")
	}
	if newPassword != confirmPassword {
		return app.NewError(app.KindBadRequest, op, "new passwords do not match")
	}
	if newPassword == oldPassword {
		return app.NewError(app.KindBadRequest, op, "new password must be different from the old password")
	}
	if _, err := s.provider.SignIn(ctx, user.Email, oldPassword); err != nil {
		if app.HasKind(err, app.KindUnauthenticated) {
			return app.WrapError(app.KindBadRequest, op, "old password is incorrect", err)
		}
		return err
	}
	return s.provider.UpdatePassword(ctx, accessToken, newPassword)
}
