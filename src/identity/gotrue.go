package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	cfg "github.com/newnonsick/Nutritional-Information-BE/src/configuration"
)

type (
	// GoTrueProvider talks to a Supabase GoTrue auth server over REST.
	GoTrueProvider struct {
		baseURL   string
		apiKey    string
		jwtSecret []byte
		pipeline  RequestPipeline
		log       logrus.FieldLogger
	}

	goTrueCall struct {
		Method string
		Path   string
		Token  string
		Body   any
		Out    any
	}

	// GoTrueError is a non 2xx answer from the auth server.
	GoTrueError struct {
		Status    int    `json:"-"`
		Code      string `json:"error_code"`
		Msg       string `json:"msg"`
		ErrorName string `json:"error"`
		Desc      string `json:"error_description"`
	}

	goTrueUser struct {
		ID           string             `json:"id"`
		Email        string             `json:"email"`
		UserMetadata map[string]any     `json:"user_metadata"`
		Identities   *[]json.RawMessage `json:"identities"`
	}

	goTrueSession struct {
		AccessToken  string      `json:"access_token"`
		RefreshToken string      `json:"refresh_token"`
		TokenType    string      `json:"token_type"`
		ExpiresIn    int         `json:"expires_in"`
		User         *goTrueUser `json:"user"`
	}

	// goTrueSignup is either a bare user or a session, depending on
	// whether e-mail confirmation is enabled.
	goTrueSignup struct {
		goTrueUser
		User *goTrueUser `json:"user"`
	}

	supabaseClaims struct {
		Email        string         `json:"email"`
		UserMetadata map[string]any `json:"user_metadata"`
		jwt.RegisteredClaims
	}

	credentials struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
)

func (e *GoTrueError) Error() string {
	message := e.Msg
	if message == "" {
		message = e.Desc
	}
	code := e.Code
	if code == "" {
		code = e.ErrorName
	}
	return fmt.Sprintf("gotrue %d %s: %s", e.Status, code, message)
}

func (e *GoTrueError) message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Desc
}

func NewGoTrueProvider(props cfg.AuthProperties, log logrus.FieldLogger) *GoTrueProvider {
	g := &GoTrueProvider{
		baseURL: strings.TrimRight(props.Host, "/") + "/auth/v1",
		apiKey:  props.APIKey,
		log:     log.WithField("provider", "gotrue"),
	}
	if props.JWTSecret != "" {
		g.jwtSecret = []byte(props.JWTSecret)
	}
	g.pipeline = RequestPipeline{
		parametersParser: func(params any) (io.Reader, error) {
			return prepareJSONBody(params.(goTrueCall).Body)
		},
		requestPrepare: g.prepareRequest,
		postProcess:    decodeGoTrueResponse,
		client:         &http.Client{Timeout: props.ReadTimeout},
	}
	return g
}

func (g *GoTrueProvider) prepareRequest(ctx context.Context, body io.Reader, params any) (*http.Request, error) {
	call := params.(goTrueCall)
	req, err := http.NewRequestWithContext(ctx, call.Method, g.baseURL+call.Path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if call.Token != "" {
		req.Header.Set("Authorization", "Bearer "+call.Token)
	}
	return req, nil
}

func decodeGoTrueResponse(status int, responseBody []byte, params any) (any, error) {
	call := params.(goTrueCall)
	if status < 200 || status > 299 {
		apiErr := &GoTrueError{Status: status}
		if err := json.Unmarshal(responseBody, apiErr); err != nil || apiErr.message() == "" {
			apiErr.Msg = strings.TrimSpace(string(responseBody))
		}
		return nil, apiErr
	}
	if call.Out == nil || len(responseBody) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(responseBody, call.Out); err != nil {
		return nil, fmt.Errorf("can not decode gotrue response: %w", err)
	}
	return call.Out, nil
}

func (g *GoTrueProvider) do(ctx context.Context, call goTrueCall) error {
	_, err := g.pipeline.Execute(ctx, call)
	return err
}

func asGoTrueError(err error) (*GoTrueError, bool) {
	var apiErr *GoTrueError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

func (g *GoTrueProvider) SignUp(ctx context.Context, email, password string) error {
	const op = "identity.SignUp"
	var out goTrueSignup
	err := g.do(ctx, goTrueCall{Method: http.MethodPost, Path: "/signup", Body: credentials{email, password}, Out: &out})
	if apiErr, ok := asGoTrueError(err); ok {
		switch {
		case apiErr.Code == "user_already_exists" || apiErr.Code == "email_exists":
			return errUserExists
		case apiErr.Status < http.StatusInternalServerError:
			return app.WrapError(app.KindBadRequest, op, apiErr.message(), err)
		}
	}
	if err != nil {
		return app.WrapError(app.KindInternal, op, "signup failed", err)
	}
	user := &out.goTrueUser
	if out.User != nil {
		user = out.User
	}
	if user.ID == "" {
		return app.NewError(app.KindInternal, op, "signup failed, no user returned")
	}
	// an already registered address is answered with an obfuscated user
	// without identities
	if user.Identities != nil && len(*user.Identities) == 0 {
		return errUserExists
	}
	return nil
}

func (g *GoTrueProvider) SignIn(ctx context.Context, email, password string) (*app.Session, error) {
	var out goTrueSession
	err := g.do(ctx, goTrueCall{
		Method: http.MethodPost,
		Path:   "/token?grant_type=password",
		Body:   credentials{email, password},
		Out:    &out,
	})
	if err != nil {
		g.log.WithError(err).Debug("password sign in rejected")
		if _, ok := asGoTrueError(err); ok {
			return nil, errInvalidCredentials
		}
		return nil, app.WrapError(app.KindInternal, "identity.SignIn", "identity provider unavailable", err)
	}
	if out.AccessToken == "" {
		return nil, errInvalidCredentials
	}
	return out.toSession(), nil
}

func (g *GoTrueProvider) Refresh(ctx context.Context, refreshToken string) (*app.Session, error) {
	var out goTrueSession
	err := g.do(ctx, goTrueCall{
		Method: http.MethodPost,
		Path:   "/token?grant_type=refresh_token",
		Body:   map[string]string{"refresh_token": refreshToken},
		Out:    &out,
	})
	if err != nil {
		if _, ok := asGoTrueError(err); ok {
			return nil, errInvalidRefresh
		}
		return nil, app.WrapError(app.KindInternal, "identity.Refresh", "identity provider unavailable", err)
	}
	if out.AccessToken == "" {
		return nil, errInvalidRefresh
	}
	return out.toSession(), nil
}

func (g *GoTrueProvider) SignOut(ctx context.Context, accessToken string) error {
	err := g.do(ctx, goTrueCall{Method: http.MethodPost, Path: "/logout", Token: accessToken})
	if apiErr, ok := asGoTrueError(err); ok && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusNotFound) {
		// session already gone
		return nil
	}
	if err != nil {
		return app.WrapError(app.KindInternal, "identity.SignOut", "logout failed", err)
	}
	return nil
}

func (g *GoTrueProvider) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	const op = "identity.UpdatePassword"
	err := g.do(ctx, goTrueCall{
		Method: http.MethodPut,
		Path:   "/user",
		Token:  accessToken,
		Body:   map[string]string{"password": newPassword},
		Out:    &goTrueUser{},
	})
	if apiErr, ok := asGoTrueError(err); ok {
		switch {
		case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
			return errInvalidToken
		case apiErr.Status < http.StatusInternalServerError:
			return app.WrapError(app.KindBadRequest, op, apiErr.message(), err)
		}
	}
	if err != nil {
		return app.WrapError(app.KindInternal, op, "password change failed", err)
	}
	return nil
}

// Verify checks the token signature locally when a JWT secret is configured
// and asks the auth server otherwise.
func (g *GoTrueProvider) Verify(ctx context.Context, accessToken string) (*app.User, error) {
	if len(g.jwtSecret) > 0 {
		return g.verifyLocally(accessToken)
	}
	var out goTrueUser
	err := g.do(ctx, goTrueCall{Method: http.MethodGet, Path: "/user", Token: accessToken, Out: &out})
	if err != nil {
		if _, ok := asGoTrueError(err); ok {
			return nil, errInvalidToken
		}
		return nil, app.WrapError(app.KindInternal, "identity.Verify", "identity provider unavailable", err)
	}
	if out.ID == "" {
		return nil, errInvalidToken
	}
	user := out.toUser()
	if expiry, err := unverifiedExpiry(accessToken); err == nil {
		user.ExpiresAt = expiry
	}
	return user, nil
}

func (g *GoTrueProvider) verifyLocally(accessToken string) (*app.User, error) {
	claims := &supabaseClaims{}
	token, err := jwt.ParseWithClaims(accessToken, claims, func(token *jwt.Token) (interface{}, error) {
		return g.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid || claims.Subject == "" {
		g.log.WithError(err).Debug("access token rejected")
		return nil, errInvalidToken
	}
	user := &app.User{ID: claims.Subject, Email: claims.Email, Metadata: claims.UserMetadata}
	if claims.ExpiresAt != nil {
		user.ExpiresAt = claims.ExpiresAt.Time
	}
	return user, nil
}

// unverifiedExpiry reads exp from a token the server already accepted.
func unverifiedExpiry(accessToken string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token without expiry")
	}
	return claims.ExpiresAt.Time, nil
}

func (u *goTrueUser) toUser() *app.User {
	return &app.User{ID: u.ID, Email: u.Email, Metadata: u.UserMetadata}
}

func (s *goTrueSession) toSession() *app.Session {
	session := &app.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
	}
	if session.TokenType == "" {
		session.TokenType = "bearer"
	}
	if s.User != nil {
		session.User = s.User.toUser()
		if s.ExpiresIn > 0 {
			session.User.ExpiresAt = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
		}
	}
	return session
}
