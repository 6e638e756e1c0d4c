package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	"github.com/newnonsick/Nutritional-Information-BE/src/imaging"
)

type mockBackend struct {
	mock.Mock
	delay time.Duration
}

func (m *mockBackend) Name() string { return "mock" }

func (m *mockBackend) Upload(ctx context.Context, asset *imaging.Asset) (*RemoteFile, error) {
	args := m.Called(ctx, asset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RemoteFile), args.Error(1)
}

func (m *mockBackend) Generate(ctx context.Context, req Request, file *RemoteFile) (string, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	args := m.Called(ctx, req, file)
	return args.String(0), args.Error(1)
}

func (m *mockBackend) Delete(ctx context.Context, file *RemoteFile) error {
	args := m.Called(ctx, file)
	return args.Error(0)
}

func testAsset(t *testing.T) *imaging.Asset {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.jpg")
	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF}, 0o600))
	return &imaging.Asset{Path: path, ContentType: imaging.ContentTypeJPEG, Size: 3}
}

func TestAnalyzeSuccess(t *testing.T) {
	backend := &mockBackend{}
	remote := &RemoteFile{Name: "files/abc"}
	asset := testAsset(t)
	backend.On("Upload", mock.Anything, asset).Return(remote, nil)
	backend.On("Generate", mock.Anything, mock.MatchedBy(func(req Request) bool {
		return req.Mode == ModeFast && req.ThinkingBudget == 0 &&
			req.SystemInstruction == SystemInstruction() &&
			req.Instruction == BuildInstruction("extra spicy")
	}), remote).Return("```json\n{\"is_food\": false, \"message\": \"a cat\"}\n```", nil)
	backend.On("Delete", mock.Anything, remote).Return(nil).Once()

	client := NewClient(backend, time.Second, 8192, logrus.New())
	text, err := client.Analyze(context.Background(), asset, "extra spicy", ModeFast)
	require.NoError(t, err)
	assert.Equal(t, `{"is_food": false, "message": "a cat"}`, text)
	backend.AssertExpectations(t)
}

func TestAnalyzeDeepModeSetsThinkingBudget(t *testing.T) {
	backend := &mockBackend{}
	remote := &RemoteFile{}
	backend.On("Upload", mock.Anything, mock.Anything).Return(remote, nil)
	backend.On("Generate", mock.Anything, mock.MatchedBy(func(req Request) bool {
		return req.Mode == ModeDeep && req.ThinkingBudget == 4096
	}), remote).Return(`{"is_food": true}`, nil)
	backend.On("Delete", mock.Anything, remote).Return(nil)

	_, err := NewClient(backend, time.Second, 4096, logrus.New()).Analyze(context.Background(), testAsset(t), "", ModeDeep)
	require.NoError(t, err)
	backend.AssertExpectations(t)
}

func TestAnalyzeReleasesRemoteFileOnFailure(t *testing.T) {
	backend := &mockBackend{}
	remote := &RemoteFile{Name: "files/abc"}
	backend.On("Upload", mock.Anything, mock.Anything).Return(remote, nil)
	backend.On("Generate", mock.Anything, mock.Anything, remote).Return("", errors.New("quota exceeded"))
	backend.On("Delete", mock.Anything, remote).Return(errors.New("already gone")).Once()

	_, err := NewClient(backend, time.Second, 0, logrus.New()).Analyze(context.Background(), testAsset(t), "", ModeFast)
	require.Error(t, err)
	assert.Equal(t, app.KindAnalysisFailure, app.KindOf(err))
	assert.ErrorContains(t, err, "quota exceeded")
	backend.AssertExpectations(t)
}

func TestAnalyzeEmptyResponse(t *testing.T) {
	backend := &mockBackend{}
	remote := &RemoteFile{}
	backend.On("Upload", mock.Anything, mock.Anything).Return(remote, nil)
	backend.On("Generate", mock.Anything, mock.Anything, remote).Return("```\n```", nil)
	backend.On("Delete", mock.Anything, remote).Return(nil)

	_, err := NewClient(backend, time.Second, 0, logrus.New()).Analyze(context.Background(), testAsset(t), "", ModeFast)
	assert.Equal(t, app.KindAnalysisFailure, app.KindOf(err))
	assert.Equal(t, "the analysis service returned an empty response", app.PublicMessage(err))
}

func TestAnalyzeTimeout(t *testing.T) {
	backend := &mockBackend{delay: time.Second}
	remote := &RemoteFile{}
	backend.On("Upload", mock.Anything, mock.Anything).Return(remote, nil)
	backend.On("Delete", mock.Anything, remote).Return(nil).Once()

	_, err := NewClient(backend, 20*time.Millisecond, 0, logrus.New()).Analyze(context.Background(), testAsset(t), "", ModeFast)
	require.Error(t, err)
	assert.Equal(t, app.KindAnalysisFailure, app.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	backend.AssertCalled(t, "Delete", mock.Anything, remote)
}

func TestAnalyzeUploadFailure(t *testing.T) {
	backend := &mockBackend{}
	backend.On("Upload", mock.Anything, mock.Anything).Return(nil, errors.New("bad upload"))

	_, err := NewClient(backend, time.Second, 0, logrus.New()).Analyze(context.Background(), testAsset(t), "", ModeFast)
	assert.Equal(t, app.KindAnalysisFailure, app.KindOf(err))
	backend.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestParseMode(t *testing.T) {
	for input, want := range map[string]Mode{"": ModeFast, "fast": ModeFast, "DEEP": ModeDeep, " deep ": ModeDeep} {
		got, err := ParseMode(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("turbo")
	assert.Equal(t, app.KindBadRequest, app.KindOf(err))
}
