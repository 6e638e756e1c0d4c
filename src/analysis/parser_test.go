package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
)

const twoComponentFood = `{
  "is_food": true,
  "food_name_en": "Chicken fried rice",
  "food_name_th": "ข้าวผัดไก่",
  "food_components": [
    {"name_en": "Fried rice", "name_th": "ข้าวผัด", "calories": 420, "protein": 9, "carbohydrates": 70, "fat": 12, "fiber": 2, "sugar": 3},
    {"name_en": "Chicken", "name_th": "ไก่", "calories": 180, "protein": 22, "carbohydrates": 0, "fat": 9, "fiber": 0, "sugar": 0}
  ],
  "total_calories": 610, "total_protein": 31, "total_carbohydrates": 70,
  "total_fat": 21, "total_fiber": 2, "total_sugar": 3
}`

func TestParseFood(t *testing.T) {
	result, err := Parse(twoComponentFood)
	require.NoError(t, err)

	food, ok := result.(Food)
	require.True(t, ok)
	assert.Equal(t, "Chicken fried rice", food.NameEN)
	assert.Equal(t, "ข้าวผัดไก่", food.NameTH)
	require.Len(t, food.Components, 2)
	assert.Equal(t, "Fried rice", food.Components[0].NameEN)
	assert.Equal(t, 22, food.Components[1].Protein)
	// totals are reported, not recomputed
	assert.Equal(t, app.Nutrients{Calories: 610, Protein: 31, Carbohydrates: 70, Fat: 21, Fiber: 2, Sugar: 3}, food.Totals)

	assert.NotEmpty(t, food.Components[0].ID)
	assert.NotEqual(t, food.Components[0].ID, food.Components[1].ID)
}

func TestParseAssignsFreshIDs(t *testing.T) {
	withModelID := `{"is_food": true, "food_components": [{"id": "model-chosen", "name_en": "Egg"}]}`
	first, err := Parse(withModelID)
	require.NoError(t, err)
	second, err := Parse(withModelID)
	require.NoError(t, err)

	a := first.(Food).Components[0].ID
	b := second.(Food).Components[0].ID
	assert.NotEqual(t, "model-chosen", a)
	assert.NotEqual(t, a, b)
}

func TestParseMissingFieldsDefault(t *testing.T) {
	result, err := Parse(`{"is_food": true, "food_name_en": "Salad",
		"food_components": [{"name_en": "Lettuce", "calories": 15, "protein": 1, "carbohydrates": 3, "fat": 0, "sugar": 1}],
		"total_calories": 15}`)
	require.NoError(t, err)

	food := result.(Food)
	assert.Equal(t, "", food.NameTH)
	assert.Equal(t, 0, food.Components[0].Fiber)
	assert.Equal(t, "", food.Components[0].NameTH)
	assert.Equal(t, 0, food.Totals.Fiber)
	assert.Equal(t, 15, food.Totals.Calories)
}

func TestParseLenientNumbers(t *testing.T) {
	result, err := Parse(`{"is_food": true, "food_components": [
		{"calories": 120.6, "protein": "7", "carbohydrates": "12.4g", "fat": null, "fiber": -3, "sugar": "about"}
	], "total_calories": "121 kcal", "total_fat": true, "food_name_en": 42}`)
	require.NoError(t, err)

	food := result.(Food)
	c := food.Components[0]
	assert.Equal(t, 121, c.Calories)
	assert.Equal(t, 7, c.Protein)
	assert.Equal(t, 12, c.Carbohydrates)
	assert.Equal(t, 0, c.Fat)
	assert.Equal(t, 0, c.Fiber)
	assert.Equal(t, 0, c.Sugar)
	assert.Equal(t, 121, food.Totals.Calories)
	assert.Equal(t, 0, food.Totals.Fat)
	assert.Equal(t, "", food.NameEN)
}

func TestParseFoodWithoutComponents(t *testing.T) {
	for _, raw := range []string{
		`{"is_food": true, "food_name_en": "Water"}`,
		`{"is_food": true, "food_components": null}`,
		`{"is_food": true, "food_components": []}`,
	} {
		result, err := Parse(raw)
		require.NoError(t, err, raw)
		assert.Empty(t, result.(Food).Components)
		assert.NotNil(t, result.(Food).Components)
	}
}

func TestParseNotFood(t *testing.T) {
	result, err := Parse(`{"is_food": false, "message": "a bicycle"}`)
	require.NoError(t, err)
	assert.Equal(t, NotFood{Message: "a bicycle"}, result)

	result, err = Parse(`{"is_food": false}`)
	require.NoError(t, err)
	assert.Equal(t, NotFood{}, result)
}

func TestParseErrors(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":                  `I think this is rice`,
		"array":                     `[{"is_food": true}]`,
		"missing is_food":           `{"food_name_en": "Rice"}`,
		"string is_food":            `{"is_food": "yes"}`,
		"null is_food":              `{"is_food": null}`,
		"components not a list":     `{"is_food": true, "food_components": {"name_en": "Rice"}}`,
		"components of non-objects": `{"is_food": true, "food_components": [1, 2]}`,
		"truncated":                 `{"is_food": true, "food_components": [`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)
			assert.Equal(t, app.KindAnalysisFailure, app.KindOf(err))
		})
	}
}
