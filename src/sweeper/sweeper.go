// Package sweeper removes stored images that no meal record points to,
// such as the blob left behind when a record write fails after upload.
package sweeper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	"github.com/newnonsick/Nutritional-Information-BE/src/repository"
)

var imageExtensions = []string{"jpg", "png"}

type (
	Sweeper struct {
		store    app.ObjectStore
		meals    repository.MealStore
		interval time.Duration
		grace    time.Duration
		now      func() time.Time
		log      logrus.FieldLogger
	}

	Report struct {
		Scanned int
		Removed int
		Failed  int
	}
)

func New(store app.ObjectStore, meals repository.MealStore, interval, grace time.Duration, log logrus.FieldLogger) *Sweeper {
	return &Sweeper{
		store:    store,
		meals:    meals,
		interval: interval,
		grace:    grace,
		now:      time.Now,
		log:      log.WithField("component", "sweeper"),
	}
}

// Run sweeps every interval until ctx is done. A zero interval disables it.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.log.Info("orphan sweep disabled")
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.WithError(err).Warn("orphan sweep failed")
			}
		}
	}
}

// Sweep deletes images older than the grace period that have no meal
// record. Objects still inside the grace period may belong to a request
// that is persisting right now.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var report Report
	objects, err := s.store.ListObjects(ctx, "", imageExtensions...)
	if err != nil {
		return report, err
	}
	cutoff := s.now().Add(-s.grace)
	for _, object := range objects {
		if object.LastModified.After(cutoff) {
			continue
		}
		report.Scanned++
		exists, err := s.meals.ImageKeyExists(ctx, object.Key)
		if err != nil {
			return report, err
		}
		if exists {
			continue
		}
		if err := s.store.DeleteFile(ctx, object.Key); err != nil {
			report.Failed++
			s.log.WithError(err).WithField("key", object.Key).Warn("can not remove orphaned image")
			continue
		}
		report.Removed++
		s.log.WithField("key", object.Key).Info("orphaned image removed")
	}
	return report, nil
}
