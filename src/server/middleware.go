package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
)

const (
	processingTimeHeader = "X-Processing-Time"

	userContextKey  = "user"
	tokenContextKey = "token"
)

// timedWriter stamps the processing time on the response just before the
// headers go out.
type timedWriter struct {
	gin.ResponseWriter
	started time.Time
}

func (w *timedWriter) stamp() {
	if !w.Written() {
		w.Header().Set(processingTimeHeader, fmt.Sprintf("%.4f", time.Since(w.started).Seconds()))
	}
}

func (w *timedWriter) WriteHeaderNow() {
	w.stamp()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *timedWriter) Write(data []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(data)
}

func (w *timedWriter) WriteString(s string) (int, error) {
	w.stamp()
	return w.ResponseWriter.WriteString(s)
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Writer = &timedWriter{ResponseWriter: c.Writer, started: started}
		log.WithField("method", c.Request.Method).
			WithField("path", c.Request.URL.Path).
			WithField("client", c.ClientIP()).
			Debug("incoming request")

		c.Next()

		entry := log.WithField("method", c.Request.Method).
			WithField("path", c.Request.URL.Path).
			WithField("status", c.Writer.Status()).
			WithField("latency", time.Since(started)).
			WithField("client", c.ClientIP())
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request served")
		} else {
			entry.Info("request served")
		}
	}
}

func recovery(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				log.Errorf("handler panicked: %v\n%s", recovered, debug.Stack())
				abortWithError(c, log, app.NewError(app.KindInternal, "server.recovery", "internal server error"))
			}
		}()
		c.Next()
	}
}

// bearerToken reads the access token from the Authorization header, then
// from the access cookie.
func bearerToken(c *gin.Context, cookieName string) string {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := c.Cookie(cookieName); err == nil {
		return cookie
	}
	return ""
}

func currentUser(c *gin.Context) *app.User {
	return c.MustGet(userContextKey).(*app.User)
}

func currentToken(c *gin.Context) string {
	return c.GetString(tokenContextKey)
}
