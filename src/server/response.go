package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
)

type (
	ErrorBody struct {
		Status  string `json:"status"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}

	MessageBody struct {
		Message string `json:"message"`
	}

	MealResponse struct {
		ID                 string              `json:"id"`
		UserID             string              `json:"user_id"`
		ImageURL           string              `json:"image_url"`
		FoodNameEN         string              `json:"food_name_en"`
		FoodNameTH         string              `json:"food_name_th"`
		FoodComponents     []app.FoodComponent `json:"food_components"`
		TotalCalories      int                 `json:"total_calories"`
		TotalProtein       int                 `json:"total_protein"`
		TotalCarbohydrates int                 `json:"total_carbohydrates"`
		TotalFat           int                 `json:"total_fat"`
		TotalFiber         int                 `json:"total_fiber"`
		TotalSugar         int                 `json:"total_sugar"`
		CreatedAt          string              `json:"created_at"`
	}

	ListMealResponse struct {
		Meals []MealResponse `json:"meals"`
	}
)

func toMealResponse(meal *app.MealRecord) MealResponse {
	components := meal.Components
	if components == nil {
		components = []app.FoodComponent{}
	}
	return MealResponse{
		ID:                 meal.ID,
		UserID:             meal.OwnerID,
		ImageURL:           meal.ImageURL,
		FoodNameEN:         meal.FoodNameEN,
		FoodNameTH:         meal.FoodNameTH,
		FoodComponents:     components,
		TotalCalories:      meal.Totals.Calories,
		TotalProtein:       meal.Totals.Protein,
		TotalCarbohydrates: meal.Totals.Carbohydrates,
		TotalFat:           meal.Totals.Fat,
		TotalFiber:         meal.Totals.Fiber,
		TotalSugar:         meal.Totals.Sugar,
		CreatedAt:          meal.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toListMealResponse(meals []app.MealRecord) ListMealResponse {
	result := ListMealResponse{Meals: make([]MealResponse, 0, len(meals))}
	for i := range meals {
		result.Meals = append(result.Meals, toMealResponse(&meals[i]))
	}
	return result
}

func errorBody(err error) (int, ErrorBody) {
	kind := app.KindOf(err)
	return app.HTTPStatus(kind), ErrorBody{Status: "error", Reason: string(kind), Message: app.PublicMessage(err)}
}

// abortWithError writes the client-safe view of err. The full chain is
// only logged.
func abortWithError(c *gin.Context, log logrus.FieldLogger, err error) {
	status, body := errorBody(err)
	entry := log.WithError(err).WithField("path", c.FullPath()).WithField("reason", body.Reason)
	if status >= 500 {
		entry.Error("request failed")
	} else {
		entry.Info("request rejected")
	}
	c.AbortWithStatusJSON(status, body)
}
