package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/newnonsick/Nutritional-Information-BE/src/analysis"
	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	"github.com/newnonsick/Nutritional-Information-BE/src/imaging"
	"github.com/newnonsick/Nutritional-Information-BE/src/repository"
)

// Persister stores the image once and writes the meal record with its
// components.
type Persister struct {
	store app.ObjectStore
	meals repository.MealStore
	now   func() time.Time
	log   logrus.FieldLogger
}

func NewPersister(store app.ObjectStore, meals repository.MealStore, log logrus.FieldLogger) *Persister {
	return &Persister{store: store, meals: meals, now: time.Now, log: log}
}

// ObjectKey names the blob of one meal image.
func ObjectKey(ownerID, contentType string) string {
	return fmt.Sprintf("%s_%s.%s", ownerID, uuid.NewString(), imaging.Extension(contentType))
}

func (p *Persister) Persist(ctx context.Context, asset *imaging.Asset, ownerID string, food analysis.Food) (*app.MealRecord, error) {
	const op = "pipeline.Persist"

	key := ObjectKey(ownerID, asset.ContentType)
	file, err := asset.Open()
	if err != nil {
		return nil, app.WrapError(app.KindPersistenceFailure, op, "can not read the staged image", err)
	}
	defer file.Close()
	if err := p.store.UploadFile(ctx, key, file, asset.Size, asset.ContentType); err != nil {
		return nil, app.WrapError(app.KindPersistenceFailure, op, "can not upload the image", err)
	}

	meal := &app.MealRecord{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		ImageKey:   key,
		ImageURL:   p.store.PublicURL(key),
		FoodNameEN: food.NameEN,
		FoodNameTH: food.NameTH,
		Components: food.Components,
		Totals:     food.Totals,
		// microseconds survive every supported database, so the stored
		// and returned values stay equal
		CreatedAt: p.now().UTC().Truncate(time.Microsecond),
	}
	if meal.Components == nil {
		meal.Components = []app.FoodComponent{}
	}
	if err := p.meals.CreateMeal(ctx, meal); err != nil {
		p.log.WithField("key", key).Warn("meal record not written, image left for the sweeper")
		return nil, app.WrapError(app.KindPersistenceFailure, op, "can not save the meal record", err)
	}
	return meal, nil
}
