package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newnonsick/Nutritional-Information-BE/src/analysis"
	"github.com/newnonsick/Nutritional-Information-BE/src/analysis/analysistest"
	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	"github.com/newnonsick/Nutritional-Information-BE/src/app/apptest"
	cfg "github.com/newnonsick/Nutritional-Information-BE/src/configuration"
	"github.com/newnonsick/Nutritional-Information-BE/src/imaging"
	"github.com/newnonsick/Nutritional-Information-BE/src/imaging/imagetest"
	"github.com/newnonsick/Nutritional-Information-BE/src/repository"
)

// countingStager counts releases on top of the disk stager.
type countingStager struct {
	*imaging.DiskStager
	mu       sync.Mutex
	released int
}

func (c *countingStager) Release(asset *imaging.Asset) {
	c.mu.Lock()
	c.released++
	c.mu.Unlock()
	c.DiskStager.Release(asset)
}

type failingMeals struct {
	repository.MealStore
}

func (failingMeals) CreateMeal(context.Context, *app.MealRecord) error {
	return errors.New("disk full")
}

type harness struct {
	orchestrator *Orchestrator
	analyzer     *analysistest.Analyzer
	stager       *countingStager
	store        *apptest.MemoryStore
	meals        repository.MealStore
	stagingDir   string
}

func newHarness(t *testing.T, response string) *harness {
	t.Helper()
	log, _ := test.NewNullLogger()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.OpenDatabase(cfg.DBProperties{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name),
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	h := &harness{
		analyzer:   &analysistest.Analyzer{Response: response},
		store:      apptest.NewMemoryStore(),
		meals:      repository.NewGormMealStore(db),
		stagingDir: t.TempDir(),
	}
	h.stager = &countingStager{DiskStager: imaging.NewDiskStager(h.stagingDir, log)}
	h.orchestrator = NewOrchestrator(
		imaging.NewValidator(10<<20),
		h.stager,
		h.analyzer,
		imaging.NewNormalizer(),
		NewPersister(h.store, h.meals, log),
		Limits{MaxWidth: 256, MaxHeight: 256},
		log)
	return h
}

func (h *harness) stagedFiles(t *testing.T) int {
	entries, err := os.ReadDir(h.stagingDir)
	require.NoError(t, err)
	return len(entries)
}

func TestAnalyzeFoodImage(t *testing.T) {
	h := newHarness(t, analysistest.RiceResponse)
	owner := app.User{ID: "user-1", Email: "somchai@example.com"}
	var stages []Stage

	meal, err := h.orchestrator.Analyze(context.Background(), Request{
		Image:       bytes.NewReader(imagetest.JPEG(t, 800, 600)),
		ContentType: "image/jpeg",
		Description: "extra spicy",
		Owner:       owner,
		Mode:        analysis.ModeFast,
		Observer:    func(s Stage) { stages = append(stages, s) },
	})
	require.NoError(t, err)

	assert.Equal(t, []Stage{StageValidating, StageStaged, StageAnalyzed, StageNormalizing, StagePersisting, StageCompleted}, stages)
	assert.Equal(t, "user-1", meal.OwnerID)
	assert.Equal(t, "Basil pork with rice", meal.FoodNameEN)
	assert.Equal(t, "ข้าวกะเพราหมู", meal.FoodNameTH)
	require.Len(t, meal.Components, 2)
	assert.Equal(t, "Steamed rice", meal.Components[0].NameEN)
	assert.Equal(t, 0, meal.Components[0].Fat)
	assert.Equal(t, app.Nutrients{Calories: 550, Protein: 26, Carbohydrates: 62, Fat: 21, Fiber: 3, Sugar: 4}, meal.Totals)
	assert.True(t, strings.HasPrefix(meal.ImageKey, "user-1_"))
	assert.True(t, strings.HasSuffix(meal.ImageKey, ".jpg"))
	assert.Equal(t, "https://storage.test/user-images/"+meal.ImageKey, meal.ImageURL)
	assert.Equal(t, time.UTC, meal.CreatedAt.Location())

	calls := h.analyzer.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "extra spicy", calls[0].UserContext)
	assert.True(t, calls[0].Staged)

	data, contentType, ok := h.store.Get(meal.ImageKey)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", contentType)
	stored, _, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.LessOrEqual(t, stored.Width, 256)
	assert.LessOrEqual(t, stored.Height, 256)

	saved, err := h.meals.GetMeal(context.Background(), meal.ID)
	require.NoError(t, err)
	assert.True(t, meal.CreatedAt.Equal(saved.CreatedAt))
	assert.Equal(t, meal.Components, saved.Components)

	assert.Equal(t, 1, h.stager.released)
	assert.Zero(t, h.stagedFiles(t))
}

func TestAnalyzeNotFood(t *testing.T) {
	h := newHarness(t, analysistest.BicycleResponse)
	var stages []Stage

	_, err := h.orchestrator.Analyze(context.Background(), Request{
		Image:       bytes.NewReader(imagetest.PNG(t, 64, 64)),
		ContentType: "image/png",
		Owner:       app.User{ID: "user-1"},
		Mode:        analysis.ModeFast,
		Observer:    func(s Stage) { stages = append(stages, s) },
	})
	require.Error(t, err)
	assert.Equal(t, app.KindNotFoodImage, app.KindOf(err))
	assert.Contains(t, app.PublicMessage(err), "a bicycle")
	assert.Equal(t, StageRejected, stages[len(stages)-1])

	assert.Zero(t, h.store.Uploads)
	meals, err := h.meals.ListMeals(context.Background(), repository.MealFilter{OwnerID: "user-1"})
	require.NoError(t, err)
	assert.Empty(t, meals)
	assert.Equal(t, 1, h.stager.released)
	assert.Zero(t, h.stagedFiles(t))
}

func TestAnalyzeNotFoodWithoutMessage(t *testing.T) {
	h := newHarness(t, `{"is_food": false}`)
	_, err := h.orchestrator.Analyze(context.Background(), Request{
		Image:       bytes.NewReader(imagetest.PNG(t, 16, 16)),
		ContentType: "image/png",
		Owner:       app.User{ID: "user-1"},
	})
	assert.Equal(t, app.KindNotFoodImage, app.KindOf(err))
	assert.Equal(t, "Invalid image. Please upload an image of food.", app.PublicMessage(err))
	assert.Zero(t, h.store.Uploads)
}

func TestAnalyzeInvalidImage(t *testing.T) {
	h := newHarness(t, analysistest.RiceResponse)
	_, err := h.orchestrator.Analyze(context.Background(), Request{
		Image:       strings.NewReader("definitely not a jpeg"),
		ContentType: "image/jpeg",
		Owner:       app.User{ID: "user-1"},
	})
	assert.Equal(t, app.KindInvalidImage, app.KindOf(err))
	assert.Empty(t, h.analyzer.Calls())
	assert.Zero(t, h.stager.released)
	assert.Zero(t, h.stagedFiles(t))
}

func TestAnalyzeModelFailureReleasesAsset(t *testing.T) {
	h := newHarness(t, "")
	h.analyzer.Err = app.NewError(app.KindAnalysisFailure, "analysis.Analyze", "analysis timed out")

	_, err := h.orchestrator.Analyze(context.Background(), Request{
		Image:       bytes.NewReader(imagetest.JPEG(t, 32, 32)),
		ContentType: "image/jpeg",
		Owner:       app.User{ID: "user-1"},
	})
	assert.Equal(t, app.KindAnalysisFailure, app.KindOf(err))
	assert.Equal(t, 1, h.stager.released)
	assert.Zero(t, h.store.Uploads)
	assert.Zero(t, h.stagedFiles(t))
}

func TestAnalyzeUnreadableResponse(t *testing.T) {
	h := newHarness(t, "I think this is soup")
	_, err := h.orchestrator.Analyze(context.Background(), Request{
		Image:       bytes.NewReader(imagetest.JPEG(t, 32, 32)),
		ContentType: "image/jpeg",
		Owner:       app.User{ID: "user-1"},
	})
	assert.Equal(t, app.KindAnalysisFailure, app.KindOf(err))
	assert.ErrorIs(t, err, analysis.ErrParse)
	assert.Equal(t, 1, h.stager.released)
}

func TestAnalyzeUploadFailure(t *testing.T) {
	h := newHarness(t, analysistest.RiceResponse)
	h.store.UploadErr = errors.New("bucket unavailable")

	_, err := h.orchestrator.Analyze(context.Background(), Request{
		Image:       bytes.NewReader(imagetest.JPEG(t, 32, 32)),
		ContentType: "image/jpeg",
		Owner:       app.User{ID: "user-1"},
	})
	assert.Equal(t, app.KindAnalysisFailure, app.KindOf(err))
	assert.True(t, app.HasKind(err, app.KindPersistenceFailure))
	meals, _ := h.meals.ListMeals(context.Background(), repository.MealFilter{OwnerID: "user-1"})
	assert.Empty(t, meals)
	assert.Equal(t, 1, h.stager.released)
}

func TestPersistRecordFailureLeavesBlob(t *testing.T) {
	log, _ := test.NewNullLogger()
	store := apptest.NewMemoryStore()
	persister := NewPersister(store, failingMeals{}, log)
	asset := stageBytes(t, imagetest.PNG(t, 8, 8), "image/png")

	_, err := persister.Persist(context.Background(), asset, "user-1", analysis.Food{NameEN: "Soup"})
	assert.Equal(t, app.KindPersistenceFailure, app.KindOf(err))
	assert.Len(t, store.Keys(), 1)
	assert.True(t, strings.HasSuffix(store.Keys()[0], ".png"))
}

func TestPersistUsesOneTimestamp(t *testing.T) {
	h := newHarness(t, "")
	fixed := time.Date(2025, 3, 1, 12, 30, 0, 123456789, time.FixedZone("ICT", 7*3600))
	persister := NewPersister(h.store, h.meals, logrus.New())
	persister.now = func() time.Time { return fixed }
	asset := stageBytes(t, imagetest.JPEG(t, 8, 8), "image/jpeg")

	meal, err := persister.Persist(context.Background(), asset, "user-1", analysis.Food{NameEN: "Soup"})
	require.NoError(t, err)
	want := time.Date(2025, 3, 1, 5, 30, 0, 123456000, time.UTC)
	assert.Equal(t, want, meal.CreatedAt)
	assert.NotNil(t, meal.Components)

	saved, err := h.meals.GetMeal(context.Background(), meal.ID)
	require.NoError(t, err)
	assert.True(t, want.Equal(saved.CreatedAt))
}

func stageBytes(t *testing.T, data []byte, contentType string) *imaging.Asset {
	t.Helper()
	log, _ := test.NewNullLogger()
	stager := imaging.NewDiskStager(t.TempDir(), log)
	asset, err := stager.Stage(bytes.NewReader(data), contentType)
	require.NoError(t, err)
	t.Cleanup(func() { stager.Release(asset) })
	return asset
}
