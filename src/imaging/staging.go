package imaging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
)

type (
	// Asset is an uploaded image written to transient local storage.
	Asset struct {
		Path        string
		ContentType string
		Size        int64

		release sync.Once
	}

	Stager interface {
		Stage(src io.Reader, contentType string) (*Asset, error)
		Release(asset *Asset)
	}

	// DiskStager stages uploads as uniquely named temporary files.
	DiskStager struct {
		dir string
		log logrus.FieldLogger
	}
)

func NewDiskStager(dir string, log logrus.FieldLogger) *DiskStager {
	return &DiskStager{dir: dir, log: log}
}

func (d *DiskStager) Stage(src io.Reader, contentType string) (*Asset, error) {
	const op = "imaging.Stage"

	file, err := os.CreateTemp(d.dir, "upload-*."+Extension(contentType))
	if err != nil {
		return nil, app.WrapError(app.KindStagingFailure, op, "can not stage image", err)
	}
	size, copyErr := io.Copy(file, src)
	closeErr := file.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		if rmErr := os.Remove(file.Name()); rmErr != nil {
			d.log.WithError(rmErr).WithField("path", file.Name()).Warn("can not remove partially staged file")
		}
		return nil, app.WrapError(app.KindStagingFailure, op, "can not stage image", err)
	}
	d.log.WithField("path", file.Name()).WithField("size", size).Debug("image staged")
	return &Asset{Path: file.Name(), ContentType: contentType, Size: size}, nil
}

// Release removes the staged file. Failures are logged, never returned, and
// calling it more than once on the same asset is a no-op.
func (d *DiskStager) Release(asset *Asset) {
	if asset == nil {
		return
	}
	asset.release.Do(func() {
		if err := os.Remove(asset.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.log.WithError(err).WithField("path", asset.Path).Warn("can not release staged image")
			return
		}
		d.log.WithField("path", asset.Path).Debug("staged image released")
	})
}

// Open opens the staged file for reading.
func (a *Asset) Open() (*os.File, error) {
	file, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("can not open staged image: %w", err)
	}
	return file, nil
}

// Bytes reads the whole staged file.
func (a *Asset) Bytes() ([]byte, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("can not read staged image: %w", err)
	}
	return data, nil
}
