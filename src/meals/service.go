package meals

import (
	"context"
	"errors"
	"strings"
	"time"
	// zone data for minimal images without /usr/share/zoneinfo
	_ "time/tzdata"

	"github.com/sirupsen/logrus"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	"github.com/newnonsick/Nutritional-Information-BE/src/repository"
)

const dateLayout = "2006-01-02"

type Service struct {
	store           repository.MealStore
	defaultLocation *time.Location
	log             logrus.FieldLogger
}

// NewService fails when defaultTimezone is not a known IANA zone.
func NewService(store repository.MealStore, defaultTimezone string, log logrus.FieldLogger) (*Service, error) {
	location, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return nil, err
	}
	return &Service{store: store, defaultLocation: location, log: log}, nil
}

// GetByID returns the requester's meal. A meal owned by someone else is
// reported as missing.
func (s *Service) GetByID(ctx context.Context, id string, requester *app.User) (*app.MealRecord, error) {
	const op = "meals.GetByID"

	meal, err := s.store.GetMeal(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, app.NewError(app.KindNotFound, op, "Food record not found")
	}
	if err != nil {
		return nil, app.WrapError(app.KindInternal, op, "can not load the food record", err)
	}
	if meal.OwnerID != requester.ID {
		s.log.WithField("meal", id).WithField("requester", requester.ID).Debug("meal requested by non-owner")
		return nil, app.NewError(app.KindNotFound, op, "Food record not found")
	}
	return meal, nil
}

// ListByDate returns the meals created on the calendar date in the given
// zone, newest first. An empty timezone uses the service default.
func (s *Service) ListByDate(ctx context.Context, date, timezone string, requester *app.User) ([]app.MealRecord, error) {
	const op = "meals.ListByDate"

	location := s.defaultLocation
	if tz := strings.TrimSpace(timezone); tz != "" {
		loaded, err := time.LoadLocation(tz)
		if err != nil {
			return nil, app.WrapError(app.KindBadRequest, op, "Invalid timezone. Use a valid timezone string.", err)
		}
		location = loaded
	}
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), location)
	if err != nil {
		return nil, app.WrapError(app.KindBadRequest, op, "Invalid date format. Use YYYY-MM-DD.", err)
	}
	return s.list(ctx, op, repository.MealFilter{
		OwnerID: requester.ID,
		From:    day.UTC(),
		To:      day.AddDate(0, 0, 1).UTC(),
	})
}

func (s *Service) ListAll(ctx context.Context, requester *app.User) ([]app.MealRecord, error) {
	return s.list(ctx, "meals.ListAll", repository.MealFilter{OwnerID: requester.ID})
}

func (s *Service) list(ctx context.Context, op string, filter repository.MealFilter) ([]app.MealRecord, error) {
	meals, err := s.store.ListMeals(ctx, filter)
	if err != nil {
		return nil, app.WrapError(app.KindInternal, op, "can not load food records", err)
	}
	if meals == nil {
		meals = []app.MealRecord{}
	}
	return meals, nil
}
