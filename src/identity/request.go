package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxResponseBytes = 1 << 20

type (
	// RequestPipeline runs one outbound call in three steps: encode the
	// parameters, build the request, interpret the response.
	RequestPipeline struct {
		parametersParser func(params any) (io.Reader, error)
		requestPrepare   func(ctx context.Context, body io.Reader, params any) (*http.Request, error)
		postProcess      func(status int, responseBody []byte, params any) (any, error)
		client           *http.Client
	}
)

func (r RequestPipeline) Execute(ctx context.Context, params any) (any, error) {
	reader, err := r.parametersParser(params)
	if err != nil {
		return nil, fmt.Errorf("error during prepare: %w", err)
	}
	request, err := r.requestPrepare(ctx, reader, params)
	if err != nil {
		return nil, fmt.Errorf("error during request prepare: %w", err)
	}
	resp, err := r.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("error during request sending: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("error during body response: %w", err)
	}
	return r.postProcess(resp.StatusCode, body, params)
}

// prepareJSONBody encodes params as JSON, nil params give an empty body.
func prepareJSONBody(params any) (io.Reader, error) {
	if params == nil {
		return http.NoBody, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}
