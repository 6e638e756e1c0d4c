package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
)

// ErrParse marks a model response that does not follow the prompt contract.
var ErrParse = errors.New("model response does not follow the response contract")

type (
	// Result is either NotFood or Food.
	Result interface {
		isResult()
	}

	NotFood struct {
		Message string
	}

	Food struct {
		NameEN     string
		NameTH     string
		Components []app.FoodComponent
		Totals     app.Nutrients
	}

	// nutrient accepts numbers, numeric strings and null.
	nutrient int

	// text accepts strings and treats anything else as empty.
	text string

	rawComponent struct {
		NameEN        text     `json:"name_en"`
		NameTH        text     `json:"name_th"`
		Calories      nutrient `json:"calories"`
		Protein       nutrient `json:"protein"`
		Carbohydrates nutrient `json:"carbohydrates"`
		Fat           nutrient `json:"fat"`
		Fiber         nutrient `json:"fiber"`
		Sugar         nutrient `json:"sugar"`
	}

	rawFood struct {
		NameEN             text            `json:"food_name_en"`
		NameTH             text            `json:"food_name_th"`
		Components         json.RawMessage `json:"food_components"`
		TotalCalories      nutrient        `json:"total_calories"`
		TotalProtein       nutrient        `json:"total_protein"`
		TotalCarbohydrates nutrient        `json:"total_carbohydrates"`
		TotalFat           nutrient        `json:"total_fat"`
		TotalFiber         nutrient        `json:"total_fiber"`
		TotalSugar         nutrient        `json:"total_sugar"`
	}

	rawNotFood struct {
		Message text `json:"message"`
	}
)

func (NotFood) isResult() {}
func (Food) isResult()    {}

var leadingNumber = regexp.MustCompile(`^\s*-?\d+(\.\d+)?`)

func (n *nutrient) UnmarshalJSON(data []byte) error {
	*n = 0
	var value float64
	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case json.Unmarshal(data, &value) == nil:
	default:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		match := leadingNumber.FindString(s)
		if match == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(match), 64)
		if err != nil {
			return nil
		}
		value = parsed
	}
	*n = nutrient(clampNutrient(value))
	return nil
}

func clampNutrient(value float64) int {
	if math.IsNaN(value) || value <= 0 {
		return 0
	}
	if value >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Round(value))
}

func (t *text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*t = ""
		return nil
	}
	*t = text(s)
	return nil
}

func (c rawComponent) toComponent() app.FoodComponent {
	return app.FoodComponent{
		ID:     uuid.NewString(),
		NameEN: string(c.NameEN),
		NameTH: string(c.NameTH),
		Nutrients: app.Nutrients{
			Calories:      int(c.Calories),
			Protein:       int(c.Protein),
			Carbohydrates: int(c.Carbohydrates),
			Fat:           int(c.Fat),
			Fiber:         int(c.Fiber),
			Sugar:         int(c.Sugar),
		},
	}
}

func parseError(detail string, cause error) error {
	if cause != nil {
		detail = fmt.Sprintf("%s: %v", detail, cause)
	}
	return app.WrapError(app.KindAnalysisFailure, "analysis.Parse",
		"the analysis service returned an unreadable response", fmt.Errorf("%w: %s", ErrParse, detail))
}

// Parse turns cleaned model output into a Result. Component identifiers are
// always freshly generated; missing numbers become zero and missing names
// become empty strings.
func Parse(raw string) (Result, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, parseError("response is not a JSON object", err)
	}
	flag, ok := fields["is_food"]
	if !ok {
		return nil, parseError("is_food is missing", nil)
	}
	var isFood bool
	if bytes.Equal(bytes.TrimSpace(flag), []byte("null")) {
		return nil, parseError("is_food is null", nil)
	}
	if err := json.Unmarshal(flag, &isFood); err != nil {
		return nil, parseError("is_food is not a boolean", err)
	}

	if !isFood {
		var notFood rawNotFood
		if err := json.Unmarshal([]byte(raw), &notFood); err != nil {
			return nil, parseError("invalid not-food shape", err)
		}
		return NotFood{Message: string(notFood.Message)}, nil
	}

	var food rawFood
	if err := json.Unmarshal([]byte(raw), &food); err != nil {
		return nil, parseError("invalid food shape", err)
	}
	var components []rawComponent
	if len(food.Components) > 0 && !bytes.Equal(food.Components, []byte("null")) {
		if err := json.Unmarshal(food.Components, &components); err != nil {
			return nil, parseError("food_components is not a list of objects", err)
		}
	}

	result := Food{
		NameEN:     string(food.NameEN),
		NameTH:     string(food.NameTH),
		Components: make([]app.FoodComponent, 0, len(components)),
		Totals: app.Nutrients{
			Calories:      int(food.TotalCalories),
			Protein:       int(food.TotalProtein),
			Carbohydrates: int(food.TotalCarbohydrates),
			Fat:           int(food.TotalFat),
			Fiber:         int(food.TotalFiber),
			Sugar:         int(food.TotalSugar),
		},
	}
	for _, component := range components {
		result.Components = append(result.Components, component.toComponent())
	}
	return result, nil
}
