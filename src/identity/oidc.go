package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	cfg "github.com/newnonsick/Nutritional-Information-BE/src/configuration"
)

type (
	// OIDCProvider signs users in against an OpenID Connect server with the
	// resource owner password grant. Account management stays with the
	// server, so SignUp and UpdatePassword are unsupported.
	OIDCProvider struct {
		provider           *oidc.Provider
		verifier           *oidc.IDTokenVerifier
		authConfig         *oauth2.Config
		httpClient         *http.Client
		revocationEndpoint string
		revoke             RequestPipeline
		log                logrus.FieldLogger
	}

	discoveryClaims struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}

	idClaims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
)

func NewOIDCProvider(ctx context.Context, props cfg.AuthProperties, log logrus.FieldLogger) (*OIDCProvider, error) {
	httpClient := &http.Client{Timeout: props.ReadTimeout}
	ctx = oidc.ClientContext(ctx, httpClient)
	provider, err := oidc.NewProvider(ctx, props.Host)
	if err != nil {
		return nil, fmt.Errorf("error creating oidc provider: %w", err)
	}
	var discovery discoveryClaims
	if err := provider.Claims(&discovery); err != nil {
		return nil, fmt.Errorf("can not read oidc discovery document: %w", err)
	}

	o := &OIDCProvider{
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: props.ID}),
		authConfig: &oauth2.Config{
			ClientID:     props.ID,
			ClientSecret: props.Secret,
			Endpoint:     provider.Endpoint(),
			Scopes:       props.Scopes,
		},
		httpClient:         httpClient,
		revocationEndpoint: discovery.RevocationEndpoint,
		log:                log.WithField("provider", "oidc"),
	}
	o.revoke = RequestPipeline{
		parametersParser: func(params any) (io.Reader, error) {
			form := url.Values{}
			form.Set("token", params.(string))
			form.Set("token_type_hint", "access_token")
			return strings.NewReader(form.Encode()), nil
		},
		requestPrepare: func(ctx context.Context, body io.Reader, _ any) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.revocationEndpoint, body)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.SetBasicAuth(url.QueryEscape(props.ID), url.QueryEscape(props.Secret))
			return req, nil
		},
		postProcess: func(status int, responseBody []byte, _ any) (any, error) {
			if status != http.StatusOK {
				return nil, fmt.Errorf("revocation endpoint answered %d: %s", status, strings.TrimSpace(string(responseBody)))
			}
			return nil, nil
		},
		client: httpClient,
	}
	o.log.WithField("issuer", props.Host).Info("oidc provider discovered")
	return o, nil
}

func (o *OIDCProvider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
}

func (o *OIDCProvider) SignUp(context.Context, string, string) error {
	return app.NewError(app.KindUnsupported, "identity.SignUp", "signup is managed by the identity provider")
}

func (o *OIDCProvider) UpdatePassword(context.Context, string, string) error {
	return app.NewError(app.KindUnsupported, "identity.UpdatePassword", "password changes are managed by the identity provider")
}

func (o *OIDCProvider) SignIn(ctx context.Context, email, password string) (*app.Session, error) {
	token, err := o.authConfig.PasswordCredentialsToken(o.clientContext(ctx), email, password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			o.log.WithError(err).Debug("password grant rejected")
			return nil, errInvalidCredentials
		}
		return nil, app.WrapError(app.KindInternal, "identity.SignIn", "identity provider unavailable", err)
	}
	return o.toSession(ctx, token)
}

func (o *OIDCProvider) Refresh(ctx context.Context, refreshToken string) (*app.Session, error) {
	source := o.authConfig.TokenSource(o.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, errInvalidRefresh
		}
		return nil, app.WrapError(app.KindInternal, "identity.Refresh", "identity provider unavailable", err)
	}
	return o.toSession(ctx, token)
}

// SignOut revokes the access token when the server publishes a revocation
// endpoint; otherwise the token simply expires.
func (o *OIDCProvider) SignOut(ctx context.Context, accessToken string) error {
	if o.revocationEndpoint == "" {
		return nil
	}
	if _, err := o.revoke.Execute(ctx, accessToken); err != nil {
		return app.WrapError(app.KindInternal, "identity.SignOut", "logout failed", err)
	}
	return nil
}

// Verify resolves the access token through the userinfo endpoint, which
// accepts opaque tokens as well as JWTs.
func (o *OIDCProvider) Verify(ctx context.Context, accessToken string) (*app.User, error) {
	info, err := o.provider.UserInfo(o.clientContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		o.log.WithError(err).Debug("userinfo rejected token")
		return nil, errInvalidToken
	}
	user := &app.User{ID: info.Subject, Email: info.Email}
	var extra map[string]any
	if err := info.Claims(&extra); err == nil {
		user.Metadata = extra
	}
	if expiry, err := unverifiedExpiry(accessToken); err == nil {
		user.ExpiresAt = expiry
	}
	return user, nil
}

func (o *OIDCProvider) toSession(ctx context.Context, token *oauth2.Token) (*app.Session, error) {
	session := &app.Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    strings.ToLower(token.Type()),
	}
	if !token.Expiry.IsZero() {
		session.ExpiresIn = int(time.Until(token.Expiry).Seconds())
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return session, nil
	}
	idToken, err := o.verifier.Verify(o.clientContext(ctx), rawIDToken)
	if err != nil {
		return nil, app.WrapError(app.KindUnauthenticated, "identity.SignIn", "identity provider returned an invalid id token", err)
	}
	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, app.WrapError(app.KindInternal, "identity.SignIn", "can not parse id token claims", err)
	}
	session.User = &app.User{ID: idToken.Subject, Email: claims.Email, ExpiresAt: token.Expiry}
	return session, nil
}
