package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
)

var ErrNotFound = errors.New("record not found")

type (
	MealStore interface {
		CreateMeal(ctx context.Context, meal *app.MealRecord) error
		GetMeal(ctx context.Context, id string) (*app.MealRecord, error)
		ListMeals(ctx context.Context, filter MealFilter) ([]app.MealRecord, error)
		ImageKeyExists(ctx context.Context, key string) (bool, error)
	}

	// MealFilter selects an owner's meals created in [From, To). Zero bounds
	// are open.
	MealFilter struct {
		OwnerID string
		From    time.Time
		To      time.Time
	}

	GormMealStore struct {
		db *gorm.DB
	}

	mealRow struct {
		ID                 string         `gorm:"primaryKey;size:36"`
		OwnerID            string         `gorm:"size:64;not null;index:idx_meals_owner_created,priority:1"`
		CreatedAt          time.Time      `gorm:"not null;index:idx_meals_owner_created,priority:2"`
		ImageKey           string         `gorm:"size:255;not null;uniqueIndex"`
		ImageURL           string         `gorm:"not null"`
		FoodNameEN         string         `gorm:"not null;default:''"`
		FoodNameTH         string         `gorm:"not null;default:''"`
		TotalCalories      int            `gorm:"not null;default:0"`
		TotalProtein       int            `gorm:"not null;default:0"`
		TotalCarbohydrates int            `gorm:"not null;default:0"`
		TotalFat           int            `gorm:"not null;default:0"`
		TotalFiber         int            `gorm:"not null;default:0"`
		TotalSugar         int            `gorm:"not null;default:0"`
		Components         []componentRow `gorm:"foreignKey:MealID;constraint:OnDelete:CASCADE"`
	}

	componentRow struct {
		ID            string `gorm:"primaryKey;size:36"`
		MealID        string `gorm:"size:36;not null;index"`
		Position      int    `gorm:"not null"`
		NameEN        string `gorm:"not null;default:''"`
		NameTH        string `gorm:"not null;default:''"`
		Calories      int    `gorm:"not null;default:0"`
		Protein       int    `gorm:"not null;default:0"`
		Carbohydrates int    `gorm:"not null;default:0"`
		Fat           int    `gorm:"not null;default:0"`
		Fiber         int    `gorm:"not null;default:0"`
		Sugar         int    `gorm:"not null;default:0"`
	}
)

func (mealRow) TableName() string {
	return "meals"
}

func (componentRow) TableName() string {
	return "meal_components"
}

func NewGormMealStore(db *gorm.DB) *GormMealStore {
	return &GormMealStore{db: db}
}

// CreateMeal writes the meal and its components in one transaction.
func (s *GormMealStore) CreateMeal(ctx context.Context, meal *app.MealRecord) error {
	row := toRow(meal)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return fmt.Errorf("can not insert meal %s: %w", meal.ID, err)
		}
		if len(row.Components) == 0 {
			return nil
		}
		if err := tx.Create(&row.Components).Error; err != nil {
			return fmt.Errorf("can not insert components of meal %s: %w", meal.ID, err)
		}
		return nil
	})
}

func (s *GormMealStore) GetMeal(ctx context.Context, id string) (*app.MealRecord, error) {
	var row mealRow
	err := s.withComponents(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("can not load meal %s: %w", id, err)
	}
	meal := fromRow(row)
	return &meal, nil
}

// ListMeals returns matching meals newest first.
func (s *GormMealStore) ListMeals(ctx context.Context, filter MealFilter) ([]app.MealRecord, error) {
	query := s.withComponents(ctx).Where("owner_id = ?", filter.OwnerID)
	if !filter.From.IsZero() {
		query = query.Where("created_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		query = query.Where("created_at < ?", filter.To.UTC())
	}
	var rows []mealRow
	if err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("can not list meals of %s: %w", filter.OwnerID, err)
	}
	meals := make([]app.MealRecord, 0, len(rows))
	for _, row := range rows {
		meals = append(meals, fromRow(row))
	}
	return meals, nil
}

func (s *GormMealStore) ImageKeyExists(ctx context.Context, key string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&mealRow{}).Where("image_key = ?", key).Count(&count).Error; err != nil {
		return false, fmt.Errorf("can not look up image %s: %w", key, err)
	}
	return count > 0, nil
}

func (s *GormMealStore) withComponents(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Components", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

func toRow(meal *app.MealRecord) mealRow {
	row := mealRow{
		ID:                 meal.ID,
		OwnerID:            meal.OwnerID,
		CreatedAt:          meal.CreatedAt.UTC(),
		ImageKey:           meal.ImageKey,
		ImageURL:           meal.ImageURL,
		FoodNameEN:         meal.FoodNameEN,
		FoodNameTH:         meal.FoodNameTH,
		TotalCalories:      meal.Totals.Calories,
		TotalProtein:       meal.Totals.Protein,
		TotalCarbohydrates: meal.Totals.Carbohydrates,
		TotalFat:           meal.Totals.Fat,
		TotalFiber:         meal.Totals.Fiber,
		TotalSugar:         meal.Totals.Sugar,
		Components:         make([]componentRow, 0, len(meal.Components)),
	}
	for i, c := range meal.Components {
		row.Components = append(row.Components, componentRow{
			ID:            c.ID,
			MealID:        meal.ID,
			Position:      i,
			NameEN:        c.NameEN,
			NameTH:        c.NameTH,
			Calories:      c.Calories,
			Protein:       c.Protein,
			Carbohydrates: c.Carbohydrates,
			Fat:           c.Fat,
			Fiber:         c.Fiber,
			Sugar:         c.Sugar,
		})
	}
	return row
}

func fromRow(row mealRow) app.MealRecord {
	meal := app.MealRecord{
		ID:         row.ID,
		OwnerID:    row.OwnerID,
		ImageKey:   row.ImageKey,
		ImageURL:   row.ImageURL,
		FoodNameEN: row.FoodNameEN,
		FoodNameTH: row.FoodNameTH,
		CreatedAt:  row.CreatedAt.UTC(),
		Totals: app.Nutrients{
			Calories:      row.TotalCalories,
			Protein:       row.TotalProtein,
			Carbohydrates: row.TotalCarbohydrates,
			Fat:           row.TotalFat,
			Fiber:         row.TotalFiber,
			Sugar:         row.TotalSugar,
		},
		Components: make([]app.FoodComponent, 0, len(row.Components)),
	}
	for _, c := range row.Components {
		meal.Components = append(meal.Components, app.FoodComponent{
			ID:     c.ID,
			NameEN: c.NameEN,
			NameTH: c.NameTH,
			Nutrients: app.Nutrients{
				Calories:      c.Calories,
				Protein:       c.Protein,
				Carbohydrates: c.Carbohydrates,
				Fat:           c.Fat,
				Fiber:         c.Fiber,
				Sugar:         c.Sugar,
			},
		})
	}
	return meal
}
