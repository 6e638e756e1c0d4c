package app

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	minio_mock "github.com/newnonsick/Nutritional-Information-BE/src/app/mock"
)

func newTestClient(m *minio_mock.MockClient, publicURL string) *MinioS3Client {
	return NewMinioS3ClientWith(m, "s3.local:9000", "user-images", false, publicURL, logrus.New())
}

func TestMinioS3Client(t *testing.T) {
	ctx := context.Background()

	t.Run("ListObjects", func(t *testing.T) {
		m := new(minio_mock.MockClient)
		now := time.Now()
		m.On("ListObjects", mock.Anything, "user-images", mock.Anything).Return([]minio.ObjectInfo{
			{Key: "u1_a.jpg", Size: 10, LastModified: now},
			{Key: "u1_b.png", Size: 20, LastModified: now},
			{Key: "notes.txt", Size: 5, LastModified: now},
		})
		client := newTestClient(m, "")

		objects, err := client.ListObjects(ctx, "", "jpg", "png")
		require.NoError(t, err)
		assert.Len(t, objects, 2)
		assert.Equal(t, "u1_a.jpg", objects[0].Key)
		assert.Equal(t, int64(20), objects[1].Size)
	})

	t.Run("ListObjectsError", func(t *testing.T) {
		m := new(minio_mock.MockClient)
		m.On("ListObjects", mock.Anything, "user-images", mock.Anything).Return([]minio.ObjectInfo{
			{Err: errors.New("access denied")},
		})
		_, err := newTestClient(m, "").ListObjects(ctx, "")
		assert.ErrorContains(t, err, "access denied")
	})

	t.Run("UploadFile", func(t *testing.T) {
		m := new(minio_mock.MockClient)
		content := []byte("Hello, World!")
		m.On("PutObject", mock.Anything, "user-images", "u1_x.jpg", mock.Anything, int64(len(content)),
			minio.PutObjectOptions{ContentType: "image/jpeg"}).Return(nil)

		err := newTestClient(m, "").UploadFile(ctx, "u1_x.jpg", bytes.NewReader(content), int64(len(content)), "image/jpeg")
		assert.NoError(t, err)
		m.AssertExpectations(t)
	})

	t.Run("UploadFileDefaultContentType", func(t *testing.T) {
		m := new(minio_mock.MockClient)
		m.On("PutObject", mock.Anything, "user-images", "k", mock.Anything, int64(1),
			minio.PutObjectOptions{ContentType: defaultContentType}).Return(errors.New("boom"))

		err := newTestClient(m, "").UploadFile(ctx, "k", bytes.NewReader([]byte{1}), 1, "")
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("DeleteFile", func(t *testing.T) {
		m := new(minio_mock.MockClient)
		m.On("RemoveObject", mock.Anything, "user-images", "test.jpg", minio.RemoveObjectOptions{}).Return(nil)
		assert.NoError(t, newTestClient(m, "").DeleteFile(ctx, "test.jpg"))
		m.AssertExpectations(t)
	})

	t.Run("PresignedURL", func(t *testing.T) {
		m := new(minio_mock.MockClient)
		signed, _ := url.Parse("http://s3.local:9000/user-images/k.jpg?X-Amz-Signature=abc")
		m.On("PresignedGetObject", mock.Anything, "user-images", "k.jpg", time.Minute, mock.Anything).Return(signed, nil)
		got, err := newTestClient(m, "").PresignedURL(ctx, "k.jpg", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, signed.String(), got)
	})

	t.Run("EnsureBucket", func(t *testing.T) {
		m := new(minio_mock.MockClient)
		m.On("BucketExists", mock.Anything, "user-images").Return(false, nil)
		m.On("MakeBucket", mock.Anything, "user-images", mock.Anything).Return(nil)
		assert.NoError(t, newTestClient(m, "").EnsureBucket(ctx, true))
		m.AssertCalled(t, "MakeBucket", mock.Anything, "user-images", mock.Anything)

		missing := new(minio_mock.MockClient)
		missing.On("BucketExists", mock.Anything, "user-images").Return(false, nil)
		assert.Error(t, newTestClient(missing, "").EnsureBucket(ctx, false))
	})
}

func TestPublicURL(t *testing.T) {
	m := new(minio_mock.MockClient)
	assert.Equal(t, "http://s3.local:9000/user-images/u1_a.jpg", newTestClient(m, "").PublicURL("u1_a.jpg"))
	assert.Equal(t, "https://cdn.example.com/user-images/u1_a.jpg",
		newTestClient(m, "https://cdn.example.com/").PublicURL("u1_a.jpg"))
}

func TestCheckIn(t *testing.T) {
	filters := []string{"jpg", "png"}
	assert.True(t, checkIn("file.jpg", filters))
	assert.True(t, checkIn("file.PNG", filters))
	assert.False(t, checkIn("file.gif", filters))
	assert.False(t, checkIn("jpg", filters))
}
