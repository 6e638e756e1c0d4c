package analysis

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	cfg "github.com/newnonsick/Nutritional-Information-BE/src/configuration"
	"github.com/newnonsick/Nutritional-Information-BE/src/imaging"
)

const (
	analysisPrefix = "analysis/"
	presignTTL     = 15 * time.Minute
)

// OpenAIBackend calls an OpenAI compatible chat completion endpoint. With an
// object store the image is uploaded and shared through a presigned link
// that Delete removes; otherwise it is inlined as a data URL.
type OpenAIBackend struct {
	client      *openai.Client
	model       string
	deepModel   string
	temperature float32
	topP        float32
	maxTokens   int
	store       app.ObjectStore
}

func NewOpenAIBackend(props cfg.MLServerProperties, store app.ObjectStore) *OpenAIBackend {
	config := openai.DefaultConfig(props.APIKey)
	if props.BaseURL != "" {
		config.BaseURL = props.BaseURL
	}
	deepModel := props.DeepModel
	if deepModel == "" {
		deepModel = props.Model
	}
	return &OpenAIBackend{
		client:      openai.NewClientWithConfig(config),
		model:       props.Model,
		deepModel:   deepModel,
		temperature: props.Temperature,
		topP:        props.TopP,
		maxTokens:   int(props.MaxTokens),
		store:       store,
	}
}

func (o *OpenAIBackend) Name() string {
	return "openai"
}

func (o *OpenAIBackend) Upload(ctx context.Context, asset *imaging.Asset) (*RemoteFile, error) {
	if o.store == nil {
		data, err := asset.Bytes()
		if err != nil {
			return nil, err
		}
		return &RemoteFile{
			URI:      fmt.Sprintf("data:%s;base64,%s", asset.ContentType, base64.StdEncoding.EncodeToString(data)),
			MIMEType: asset.ContentType,
		}, nil
	}

	file, err := asset.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	key := fmt.Sprintf("%s%s.%s", analysisPrefix, uuid.NewString(), imaging.Extension(asset.ContentType))
	if err := o.store.UploadFile(ctx, key, file, asset.Size, asset.ContentType); err != nil {
		return nil, err
	}
	remote := &RemoteFile{Name: key, MIMEType: asset.ContentType}
	link, err := o.store.PresignedURL(ctx, key, presignTTL)
	if err != nil {
		return remote, err
	}
	remote.URI = link
	return remote, nil
}

func (o *OpenAIBackend) Generate(ctx context.Context, req Request, file *RemoteFile) (string, error) {
	request := openai.ChatCompletionRequest{
		Model:               o.model,
		Temperature:         o.temperature,
		TopP:                o.topP,
		MaxCompletionTokens: o.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemInstruction},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: req.Instruction},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    file.URI,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	}
	if req.Mode == ModeDeep {
		// reasoning models only accept the default sampling parameters
		request.Model = o.deepModel
		request.ReasoningEffort = "high"
		request.Temperature = 0
		request.TopP = 0
	}

	resp, err := o.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", fmt.Errorf("failed to call openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response generated")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAIBackend) Delete(ctx context.Context, file *RemoteFile) error {
	if o.store == nil || file == nil || file.Name == "" {
		return nil
	}
	return o.store.DeleteFile(ctx, file.Name)
}
