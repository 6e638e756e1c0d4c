package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	cfg "github.com/newnonsick/Nutritional-Information-BE/src/configuration"
)

// Handlers are the route groups of the API.
type Handlers struct {
	Auth    *AuthHandler
	Meals   *MealsHandler
	Analyze *AnalyzeHandler
	WS      *WSHandler
}

func NewRouter(config *cfg.Properties, handlers Handlers, log logrus.FieldLogger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(recovery(log), requestLogger(log))
	router.Use(cors.New(corsConfig(config.Server.CorsOrigins)))
	if config.Server.Pprof {
		pprof.Register(router)
	}

	router.GET("/health", GetHealth)

	api := router.Group("/api/v1")
	api.POST("/signup", handlers.Auth.SignUp)
	api.POST("/login", handlers.Auth.Login)

	secured := api.Group("", handlers.Auth.Authorize(false))
	secured.POST("/refresh-token", handlers.Auth.Refresh)
	secured.POST("/logout", handlers.Auth.Logout)
	secured.POST("/change-password", handlers.Auth.ChangePassword)
	secured.GET("/me", handlers.Auth.Account)
	secured.POST("/analyze", handlers.Analyze.PostAnalyze)
	secured.GET("/meals", handlers.Meals.GetMealList)
	secured.GET("/meals/:id", handlers.Meals.GetMeal)

	api.GET("/ws/analyze", handlers.Auth.Authorize(true), handlers.WS.Stream)

	router.NoRoute(func(c *gin.Context) {
		_, body := errorBody(app.NewError(app.KindNotFound, "server.NoRoute", "route not found"))
		c.JSON(http.StatusNotFound, body)
	})
	return router
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:     []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "Cache-Control"},
		ExposeHeaders:    []string{"Content-Length", processingTimeHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		// credentials forbid a literal wildcard, so echo the origin
		config.AllowOriginFunc = func(string) bool { return true }
		return config
	}
	config.AllowOrigins = origins
	return config
}

func GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// RunServer serves until ctx is done, then drains in-flight requests.
func RunServer(ctx context.Context, config cfg.HttpServerProperties, handler http.Handler, log logrus.FieldLogger) error {
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	errs := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	log.Info("http server stopped")
	return nil
}
