package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
)

type (
	MealReader interface {
		GetByID(ctx context.Context, id string, requester *app.User) (*app.MealRecord, error)
		ListByDate(ctx context.Context, date, timezone string, requester *app.User) ([]app.MealRecord, error)
		ListAll(ctx context.Context, requester *app.User) ([]app.MealRecord, error)
	}

	MealsHandler struct {
		meals MealReader
		log   logrus.FieldLogger
	}
)

const (
	dateQueryParam     = "date"
	timezoneQueryParam = "timezone"
)

func NewMealsHandler(meals MealReader, log logrus.FieldLogger) *MealsHandler {
	return &MealsHandler{meals: meals, log: log}
}

func (m *MealsHandler) GetMeal(c *gin.Context) {
	meal, err := m.meals.GetByID(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		abortWithError(c, m.log, err)
		return
	}
	c.JSON(http.StatusOK, toMealResponse(meal))
}

// GetMealList lists the caller's meals for one calendar date, or all of
// them when no date is given.
func (m *MealsHandler) GetMealList(c *gin.Context) {
	var (
		meals []app.MealRecord
		err   error
	)
	if date, ok := c.GetQuery(dateQueryParam); ok && date != "" {
		meals, err = m.meals.ListByDate(c.Request.Context(), date, c.Query(timezoneQueryParam), currentUser(c))
	} else {
		meals, err = m.meals.ListAll(c.Request.Context(), currentUser(c))
	}
	if err != nil {
		abortWithError(c, m.log, err)
		return
	}
	c.JSON(http.StatusOK, toListMealResponse(meals))
}
