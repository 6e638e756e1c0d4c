package app

import "time"

type (
	// Nutrients holds whole-number amounts: kcal for calories, grams otherwise.
	Nutrients struct {
		Calories      int `json:"calories"`
		Protein       int `json:"protein"`
		Carbohydrates int `json:"carbohydrates"`
		Fat           int `json:"fat"`
		Fiber         int `json:"fiber"`
		Sugar         int `json:"sugar"`
	}

	// FoodComponent is one identifiable part of a dish.
	FoodComponent struct {
		ID     string `json:"id"`
		NameEN string `json:"name_en"`
		NameTH string `json:"name_th"`
		Nutrients
	}

	// MealRecord is the durable result of one successful food analysis.
	// It is never mutated after creation.
	MealRecord struct {
		ID         string
		OwnerID    string
		ImageKey   string
		ImageURL   string
		FoodNameEN string
		FoodNameTH string
		Components []FoodComponent
		Totals     Nutrients
		CreatedAt  time.Time
	}
)
