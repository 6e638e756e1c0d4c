package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/newnonsick/Nutritional-Information-BE/src/analysis"
	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	"github.com/newnonsick/Nutritional-Information-BE/src/pipeline"
)

type (
	Analyzer interface {
		Analyze(ctx context.Context, req pipeline.Request) (*app.MealRecord, error)
	}

	AnalyzeHandler struct {
		analyzer       Analyzer
		maxUploadBytes int64
		log            logrus.FieldLogger
	}
)

const (
	fileFormField        = "file"
	descriptionFormField = "description"
	modeFormField        = "mode"

	// room for the other form fields and multipart framing
	multipartOverhead = 1 << 20
)

func NewAnalyzeHandler(analyzer Analyzer, maxUploadBytes int64, log logrus.FieldLogger) *AnalyzeHandler {
	return &AnalyzeHandler{analyzer: analyzer, maxUploadBytes: maxUploadBytes, log: log}
}

func (a *AnalyzeHandler) PostAnalyze(c *gin.Context) {
	const op = "server.PostAnalyze"

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, a.maxUploadBytes+multipartOverhead)
	file, header, err := c.Request.FormFile(fileFormField)
	if err != nil {
		abortWithError(c, a.log, app.WrapError(app.KindBadRequest, op, "no image file in request", err))
		return
	}
	defer file.Close()

	mode, err := analysis.ParseMode(c.PostForm(modeFormField))
	if err != nil {
		abortWithError(c, a.log, err)
		return
	}
	meal, err := a.analyzer.Analyze(c.Request.Context(), pipeline.Request{
		Image:       file,
		ContentType: header.Header.Get("Content-Type"),
		Description: c.PostForm(descriptionFormField),
		Owner:       *currentUser(c),
		Mode:        mode,
	})
	if err != nil {
		abortWithError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, toMealResponse(meal))
}
