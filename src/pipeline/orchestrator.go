package pipeline

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/newnonsick/Nutritional-Information-BE/src/analysis"
	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	"github.com/newnonsick/Nutritional-Information-BE/src/imaging"
)

type Stage string

const defaultNotFoodMessage = "Invalid image. Please upload an image of food."

const (
	StageValidating  Stage = "validating"
	StageStaged      Stage = "staged"
	StageAnalyzed    Stage = "analyzed"
	StageRejected    Stage = "rejected"
	StageNormalizing Stage = "normalizing"
	StagePersisting  Stage = "persisting"
	StageCompleted   Stage = "completed"
)

type (
	// Observer is told about every stage a request enters. It runs on the
	// request goroutine and must not block.
	Observer func(stage Stage)

	Analyzer interface {
		Analyze(ctx context.Context, asset *imaging.Asset, userContext string, mode analysis.Mode) (string, error)
	}

	Request struct {
		Image       io.ReadSeeker
		ContentType string
		Description string
		Owner       app.User
		Mode        analysis.Mode
		Observer    Observer
	}

	Limits struct {
		MaxWidth  int
		MaxHeight int
	}

	Orchestrator struct {
		validator  *imaging.Validator
		stager     imaging.Stager
		analyzer   Analyzer
		normalizer *imaging.Normalizer
		persister  *Persister
		limits     Limits
		log        logrus.FieldLogger
	}
)

func NewOrchestrator(
	validator *imaging.Validator,
	stager imaging.Stager,
	analyzer Analyzer,
	normalizer *imaging.Normalizer,
	persister *Persister,
	limits Limits,
	log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		validator:  validator,
		stager:     stager,
		analyzer:   analyzer,
		normalizer: normalizer,
		persister:  persister,
		limits:     limits,
		log:        log,
	}
}

// Analyze runs one uploaded photo through validation, staging, model
// analysis, downscaling and persistence. The staged copy is released on
// every path out of this function.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (*app.MealRecord, error) {
	const op = "pipeline.Analyze"

	notify := req.Observer
	if notify == nil {
		notify = func(Stage) {}
	}
	log := o.log.WithField("owner", req.Owner.ID).WithField("mode", req.Mode)
	started := time.Now()

	notify(StageValidating)
	contentType, err := o.validator.Validate(req.Image, req.ContentType)
	if err != nil {
		return nil, err
	}

	asset, err := o.stager.Stage(req.Image, contentType)
	if err != nil {
		return nil, err
	}
	defer o.stager.Release(asset)
	notify(StageStaged)

	raw, err := o.analyzer.Analyze(ctx, asset, req.Description, req.Mode)
	if err != nil {
		return nil, err
	}
	result, err := analysis.Parse(raw)
	if err != nil {
		return nil, err
	}
	notify(StageAnalyzed)

	var food analysis.Food
	switch r := result.(type) {
	case analysis.NotFood:
		notify(StageRejected)
		log.Info("image rejected as not food")
		message := r.Message
		if strings.TrimSpace(message) == "" {
			message = defaultNotFoodMessage
		}
		return nil, app.NewError(app.KindNotFoodImage, op, message)
	case analysis.Food:
		food = r
	}

	notify(StageNormalizing)
	if err := o.normalizer.Downscale(asset, o.limits.MaxWidth, o.limits.MaxHeight); err != nil {
		return nil, app.WrapError(app.KindAnalysisFailure, op, "can not prepare the image for storage", err)
	}

	notify(StagePersisting)
	meal, err := o.persister.Persist(ctx, asset, req.Owner.ID, food)
	if err != nil {
		return nil, app.WrapError(app.KindAnalysisFailure, op, "can not save the analysis", err)
	}
	notify(StageCompleted)
	log.WithField("meal", meal.ID).WithField("elapsed", time.Since(started)).Info("meal analyzed")
	return meal, nil
}
