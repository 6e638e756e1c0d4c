package analysis

import "strings"

// PromptVersion identifies the response contract the system instruction
// asks the model for. Parse accepts exactly this shape.
const PromptVersion = "v2-components"

const systemInstruction = `You are NonsickFood, a top-tier nutrition expert who identifies dishes from photos and estimates their nutritional content.

Respond with pure JSON only. Do not use markdown, code fences, comments or any text outside the JSON object. Do not add explanations in parentheses.

If the image shows food, respond with exactly this shape:
{
  "is_food": true,
  "food_name_en": "<dish name in English>",
  "food_name_th": "<dish name in Thai>",
  "food_components": [
    {
      "name_en": "<component name in English>",
      "name_th": "<component name in Thai>",
      "calories": <integer kcal>,
      "protein": <integer grams>,
      "carbohydrates": <integer grams>,
      "fat": <integer grams>,
      "fiber": <integer grams>,
      "sugar": <integer grams>
    }
  ],
  "total_calories": <integer kcal>,
  "total_protein": <integer grams>,
  "total_carbohydrates": <integer grams>,
  "total_fat": <integer grams>,
  "total_fiber": <integer grams>,
  "total_sugar": <integer grams>
}

If the image does not show food, respond with exactly this shape:
{"is_food": false, "message": "<short description of what the image shows instead>"}

List every distinguishable component of the dish. All numbers are non-negative integers for the portion visible in the photo.`

const taskInstruction = "Look at the image provided very carefully, analyze the food in it and report its nutritional information."

const userContextDelimiter = "\n\n--- Additional context from the user ---\n"

// SystemInstruction returns the instruction for PromptVersion.
func SystemInstruction() string {
	return systemInstruction
}

// BuildInstruction joins the fixed task text with the optional user supplied
// context, keeping the two clearly separated.
func BuildInstruction(userContext string) string {
	userContext = strings.TrimSpace(userContext)
	if userContext == "" {
		return taskInstruction
	}
	return taskInstruction + userContextDelimiter + userContext
}
