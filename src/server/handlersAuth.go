package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	cfg "github.com/newnonsick/Nutritional-Information-BE/src/configuration"
)

type (
	// Identity is the part of identity.Service the handlers use.
	Identity interface {
		Authenticate(ctx context.Context, accessToken string) (*app.User, error)
		SignUp(ctx context.Context, email, password string) error
		SignIn(ctx context.Context, email, password string) (*app.Session, error)
		Refresh(ctx context.Context, caller *app.User, refreshToken string) (*app.Session, error)
		SignOut(ctx context.Context, accessToken string) error
		ChangePassword(ctx context.Context, accessToken string, user *app.User, oldPassword, newPassword, confirmPassword string) error
	}

	AuthHandler struct {
		identity               Identity
		AccessTokenCookieName  string
		RefreshTokenCookieName string
		CookieDomain           string
		CookieSecure           bool
		log                    logrus.FieldLogger
	}

	CredentialsBody struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	RefreshTokenBody struct {
		RefreshToken string `json:"refresh_token"`
	}

	ChangePasswordBody struct {
		OldPassword     string `json:"old_password"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}
)

const accessTokenQueryParam = "access_token"

func NewAuthHandler(config cfg.AuthProperties, identity Identity, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		identity:               identity,
		AccessTokenCookieName:  config.AccessTokenCookieName,
		RefreshTokenCookieName: config.RefreshTokenCookieName,
		CookieDomain:           config.CookieDomain,
		CookieSecure:           config.CookieSecure,
		log:                    log,
	}
}

// Authorize resolves the caller from the bearer token and stores it on the
// context. With allowQuery the token may also come from the access_token
// query parameter, which browsers need for websocket upgrades.
func (a *AuthHandler) Authorize(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c, a.AccessTokenCookieName)
		if token == "" && allowQuery {
			token = c.Query(accessTokenQueryParam)
		}
		if token == "" {
			c.Header("WWW-Authenticate", "Bearer")
			abortWithError(c, a.log, app.NewError(app.KindUnauthenticated, "server.Authorize", "could not validate credentials"))
			return
		}
		user, err := a.identity.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			abortWithError(c, a.log, err)
			return
		}
		c.Set(userContextKey, user)
		c.Set(tokenContextKey, token)
		c.Next()
	}
}

func (a *AuthHandler) SignUp(c *gin.Context) {
	var body CredentialsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, a.log, app.WrapError(app.KindBadRequest, "server.SignUp", "invalid request body", err))
		return
	}
	if err := a.identity.SignUp(c.Request.Context(), body.Email, body.Password); err != nil {
		abortWithError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, MessageBody{Message: "Signup successful. Please check your email to confirm your account."})
}

func (a *AuthHandler) Login(c *gin.Context) {
	var body CredentialsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, a.log, app.WrapError(app.KindBadRequest, "server.Login", "invalid request body", err))
		return
	}
	session, err := a.identity.SignIn(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		abortWithError(c, a.log, err)
		return
	}
	a.setSessionCookies(c, session)
	c.JSON(http.StatusOK, session)
}

func (a *AuthHandler) Refresh(c *gin.Context) {
	var body RefreshTokenBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, a.log, app.WrapError(app.KindBadRequest, "server.Refresh", "invalid request body", err))
		return
	}
	if body.RefreshToken == "" {
		if cookie, err := c.Cookie(a.RefreshTokenCookieName); err == nil {
			body.RefreshToken = cookie
		}
	}
	session, err := a.identity.Refresh(c.Request.Context(), currentUser(c), body.RefreshToken)
	if err != nil {
		abortWithError(c, a.log, err)
		return
	}
	a.setSessionCookies(c, session)
	c.JSON(http.StatusOK, session)
}

func (a *AuthHandler) Logout(c *gin.Context) {
	if err := a.identity.SignOut(c.Request.Context(), currentToken(c)); err != nil {
		abortWithError(c, a.log, err)
		return
	}
	c.SetCookie(a.AccessTokenCookieName, "", -1, "/", a.CookieDomain, a.CookieSecure, true)
	c.SetCookie(a.RefreshTokenCookieName, "", -1, "/", a.CookieDomain, a.CookieSecure, true)
	c.JSON(http.StatusOK, MessageBody{Message: "Logged out successfully."})
}

func (a *AuthHandler) ChangePassword(c *gin.Context) {
	var body ChangePasswordBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, a.log, app.WrapError(app.KindBadRequest, "server.ChangePassword", "invalid request body", err))
		return
	}
	err := a.identity.ChangePassword(c.Request.Context(), currentToken(c), currentUser(c),
		body.OldPassword, body.NewPassword, body.ConfirmPassword)
	if err != nil {
		abortWithError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, MessageBody{Message: "Password changed successfully."})
}

// Account returns the caller's identity.
func (a *AuthHandler) Account(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

func (a *AuthHandler) setSessionCookies(c *gin.Context, session *app.Session) {
	maxAge := session.ExpiresIn
	if maxAge <= 0 {
		maxAge = 3600
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(a.AccessTokenCookieName, session.AccessToken, maxAge, "/", a.CookieDomain, a.CookieSecure, true)
	if session.RefreshToken != "" {
		c.SetCookie(a.RefreshTokenCookieName, session.RefreshToken, 30*24*3600, "/", a.CookieDomain, a.CookieSecure, true)
	}
}
