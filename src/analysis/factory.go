package analysis

import (
	"context"
	"fmt"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	cfg "github.com/newnonsick/Nutritional-Information-BE/src/configuration"
)

// NewBackend builds the backend selected by ML_PROVIDER. store is only used
// by the openai backend when ML_UPLOAD_VIA_STORAGE is set.
func NewBackend(ctx context.Context, props cfg.MLServerProperties, store app.ObjectStore) (Backend, error) {
	switch props.Provider {
	case "vertex":
		return NewVertexBackend(ctx, props)
	case "openai":
		if !props.UploadViaStorage {
			store = nil
		}
		return NewOpenAIBackend(props, store), nil
	default:
		return nil, fmt.Errorf("unknown analysis provider %q", props.Provider)
	}
}
