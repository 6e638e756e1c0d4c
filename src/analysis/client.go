package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	"github.com/newnonsick/Nutritional-Information-BE/src/imaging"
)

type Mode string

const (
	ModeFast Mode = "fast"
	ModeDeep Mode = "deep"
)

const remoteCleanupTimeout = 10 * time.Second

type (
	// Request is one multimodal generation call.
	Request struct {
		SystemInstruction string
		Instruction       string
		Mode              Mode
		// ThinkingBudget is zero in fast mode.
		ThinkingBudget int32
	}

	// RemoteFile references an image made available to the model backend.
	// Name is set when the backend allocated something that Delete must free.
	RemoteFile struct {
		Name     string
		URI      string
		MIMEType string
		Data     []byte
	}

	Backend interface {
		Name() string
		Upload(ctx context.Context, asset *imaging.Asset) (*RemoteFile, error)
		Generate(ctx context.Context, req Request, file *RemoteFile) (string, error)
		Delete(ctx context.Context, file *RemoteFile) error
	}

	Client struct {
		backend        Backend
		timeout        time.Duration
		thinkingBudget int32
		log            logrus.FieldLogger
	}
)

func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeFast:
		return ModeFast, nil
	case ModeDeep:
		return ModeDeep, nil
	}
	return "", app.NewError(app.KindBadRequest, "analysis.ParseMode",
		fmt.Sprintf("unknown analysis mode %q, use fast or deep", value))
}

func NewClient(backend Backend, timeout time.Duration, thinkingBudget int32, log logrus.FieldLogger) *Client {
	return &Client{
		backend:        backend,
		timeout:        timeout,
		thinkingBudget: thinkingBudget,
		log:            log.WithField("backend", backend.Name()),
	}
}

// Analyze sends the staged image and the instruction to the model and
// returns the cleaned response text. The remote file reference is always
// released, whatever the outcome.
func (c *Client) Analyze(ctx context.Context, asset *imaging.Asset, userContext string, mode Mode) (string, error) {
	const op = "analysis.Analyze"

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := Request{
		SystemInstruction: SystemInstruction(),
		Instruction:       BuildInstruction(userContext),
		Mode:              mode,
	}
	if mode == ModeDeep {
		req.ThinkingBudget = c.thinkingBudget
	}

	file, err := c.backend.Upload(ctx, asset)
	if file != nil {
		defer c.release(ctx, file)
	}
	if err != nil {
		return "", app.WrapError(app.KindAnalysisFailure, op, "can not send image to the analysis service", err)
	}

	result := make(chan string, 1)
	errs := make(chan error, 1)
	started := time.Now()
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				c.log.Errorf("model call panicked: %v\n%s", recovered, debug.Stack())
				errs <- fmt.Errorf("recovered from: %v", recovered)
			}
		}()
		text, err := c.backend.Generate(ctx, req, file)
		if err != nil {
			errs <- err
			return
		}
		result <- text
	}()

	select {
	case text := <-result:
		c.log.WithField("mode", mode).WithField("elapsed", time.Since(started)).Debug("model responded")
		cleaned := Clean(text)
		if cleaned == "" {
			return "", app.NewError(app.KindAnalysisFailure, op, "the analysis service returned an empty response")
		}
		return cleaned, nil
	case err := <-errs:
		return "", app.WrapError(app.KindAnalysisFailure, op, "the analysis service failed", err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", app.WrapError(app.KindAnalysisFailure, op, "analysis timed out", ctx.Err())
		}
		return "", app.WrapError(app.KindAnalysisFailure, op, "analysis was cancelled", ctx.Err())
	}
}

func (c *Client) release(ctx context.Context, file *RemoteFile) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remoteCleanupTimeout)
	defer cancel()
	if err := c.backend.Delete(ctx, file); err != nil {
		c.log.WithError(err).WithField("file", file.Name).Warn("can not release remote file")
	}
}
