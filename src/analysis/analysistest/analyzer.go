// Package analysistest provides a scripted stand-in for the model client.
package analysistest

import (
	"context"
	"os"
	"sync"

	"github.com/newnonsick/Nutritional-Information-BE/src/analysis"
	"github.com/newnonsick/Nutritional-Information-BE/src/imaging"
)

const (
	RiceResponse = "```json\n" + `{
  "is_food": true,
  "food_name_en": "Basil pork with rice (extra spicy)",
  "food_name_th": "ข้าวกะเพราหมู",
  "food_components": [
    {"name_en": "Steamed rice", "name_th": "ข้าวสวย", "calories": 240, "protein": 4, "carbohydrates": 53, "fat": 0.4, "fiber": 1, "sugar": 0},
    {"name_en": "Stir-fried pork with basil", "name_th": "หมูผัดกะเพรา", "calories": 310, "protein": 22, "carbohydrates": 9, "fat": 21, "fiber": 2, "sugar": 4}
  ],
  "total_calories": 550,
  "total_protein": 26,
  "total_carbohydrates": 62,
  "total_fat": 21,
  "total_fiber": 3,
  "total_sugar": 4
}` + "\n```"

	BicycleResponse = `{"is_food": false, "message": "This image shows a bicycle, not food."}`
)

// Call records one Analyze invocation.
type Call struct {
	UserContext string
	Mode        analysis.Mode
	ContentType string
	// Staged reports whether the staged file existed while the model ran.
	Staged bool
}

// Analyzer answers every call with Response, or Err when set.
type Analyzer struct {
	Response string
	Err      error

	mu    sync.Mutex
	calls []Call
}

func (a *Analyzer) Analyze(_ context.Context, asset *imaging.Asset, userContext string, mode analysis.Mode) (string, error) {
	_, statErr := os.Stat(asset.Path)
	a.mu.Lock()
	a.calls = append(a.calls, Call{
		UserContext: userContext,
		Mode:        mode,
		ContentType: asset.ContentType,
		Staged:      statErr == nil,
	})
	a.mu.Unlock()
	if a.Err != nil {
		return "", a.Err
	}
	return analysis.Clean(a.Response), nil
}

func (a *Analyzer) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}
