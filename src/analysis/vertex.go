package analysis

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"

	cfg "github.com/newnonsick/Nutritional-Information-BE/src/configuration"
	"github.com/newnonsick/Nutritional-Information-BE/src/imaging"
)

// VertexBackend calls Gemini through Vertex AI. Images are sent inline, so
// there is no remote file to delete. Deep mode uses the deep model, which is
// expected to be a thinking model.
type VertexBackend struct {
	client *genai.Client
	fast   *genai.GenerativeModel
	deep   *genai.GenerativeModel
}

func NewVertexBackend(ctx context.Context, props cfg.MLServerProperties) (*VertexBackend, error) {
	opts := []option.ClientOption{}
	if props.Credentials != "" {
		opts = append(opts, option.WithCredentialsFile(props.Credentials))
	}
	client, err := genai.NewClient(ctx, props.ProjectID, props.Location, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	deepModel := props.DeepModel
	if deepModel == "" {
		deepModel = props.Model
	}
	return &VertexBackend{
		client: client,
		fast:   newGenerativeModel(client, props.Model, props),
		deep:   newGenerativeModel(client, deepModel, props),
	}, nil
}

func newGenerativeModel(client *genai.Client, name string, props cfg.MLServerProperties) *genai.GenerativeModel {
	model := client.GenerativeModel(name)
	model.SetTemperature(props.Temperature)
	model.SetTopP(props.TopP)
	model.SetTopK(props.TopK)
	model.SetMaxOutputTokens(props.MaxTokens)
	model.ResponseMIMEType = "text/plain"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(SystemInstruction())}}
	return model
}

func (v *VertexBackend) Name() string {
	return "vertex"
}

func (v *VertexBackend) Upload(_ context.Context, asset *imaging.Asset) (*RemoteFile, error) {
	data, err := asset.Bytes()
	if err != nil {
		return nil, err
	}
	return &RemoteFile{MIMEType: asset.ContentType, Data: data}, nil
}

func (v *VertexBackend) Generate(ctx context.Context, req Request, file *RemoteFile) (string, error) {
	model := v.fast
	if req.Mode == ModeDeep {
		model = v.deep
	}
	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: file.MIMEType, Data: file.Data},
		genai.Text(req.Instruction))
	if err != nil {
		return "", fmt.Errorf("failed to call vertex: %w", err)
	}
	return responseText(resp)
}

func (v *VertexBackend) Delete(context.Context, *RemoteFile) error {
	return nil
}

func (v *VertexBackend) Close() error {
	return v.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no response generated")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response, finish reason %s", candidate.FinishReason)
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}
