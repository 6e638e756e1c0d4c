package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/newnonsick/Nutritional-Information-BE/src/analysis"
	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	"github.com/newnonsick/Nutritional-Information-BE/src/pipeline"
)

const (
	wsMessageAnalyze = "analyze"
	wsMessageStage   = "stage"
	wsMessageResult  = "result"
	wsMessageError   = "error"

	wsWriteTimeout = 10 * time.Second
)

type (
	WSHandler struct {
		analyzer     Analyzer
		upgrader     websocket.Upgrader
		maxReadBytes int64
		log          logrus.FieldLogger
	}

	wsEnvelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data,omitempty"`
	}

	wsOutgoing struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}

	wsAnalyzeData struct {
		Image       string `json:"image"`
		ContentType string `json:"content_type"`
		Description string `json:"description"`
		Mode        string `json:"mode"`
	}

	wsStageData struct {
		Stage pipeline.Stage `json:"stage"`
	}

	wsErrorData struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}
)

func NewWSHandler(analyzer Analyzer, maxUploadBytes int64, allowedOrigins []string, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		analyzer: analyzer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		// base64 inflates by a third
		maxReadBytes: maxUploadBytes*4/3 + multipartOverhead,
		log:          log.WithField("transport", "websocket"),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, candidate := range allowed {
			if candidate == "*" || candidate == origin {
				return true
			}
		}
		return false
	}
}

// Stream upgrades the connection and analyzes one image per "analyze"
// message, reporting each pipeline stage before the final result.
func (w *WSHandler) Stream(c *gin.Context) {
	conn, err := w.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		w.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(w.maxReadBytes)

	user := currentUser(c)
	log := w.log.WithField("owner", user.ID)
	log.Debug("websocket connected")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("websocket read ended")
			}
			return
		}
		var envelope wsEnvelope
		if err := json.Unmarshal(message, &envelope); err != nil {
			w.sendError(conn, app.WrapError(app.KindBadRequest, "server.Stream", "invalid message format", err))
			continue
		}
		switch envelope.Type {
		case wsMessageAnalyze:
			w.handleAnalyze(c, conn, user, envelope.Data)
		default:
			w.sendError(conn, app.NewError(app.KindBadRequest, "server.Stream", "unknown message type"))
		}
	}
}

func (w *WSHandler) handleAnalyze(c *gin.Context, conn *websocket.Conn, user *app.User, raw json.RawMessage) {
	const op = "server.handleAnalyze"

	var data wsAnalyzeData
	if err := json.Unmarshal(raw, &data); err != nil {
		w.sendError(conn, app.WrapError(app.KindBadRequest, op, "invalid analyze message", err))
		return
	}
	image, err := base64.StdEncoding.DecodeString(data.Image)
	if err != nil || len(image) == 0 {
		w.sendError(conn, app.WrapError(app.KindInvalidImage, op, "image must be base64 encoded", err))
		return
	}
	mode, err := analysis.ParseMode(data.Mode)
	if err != nil {
		w.sendError(conn, err)
		return
	}

	meal, err := w.analyzer.Analyze(c.Request.Context(), pipeline.Request{
		Image:       bytes.NewReader(image),
		ContentType: data.ContentType,
		Description: data.Description,
		Owner:       *user,
		Mode:        mode,
		Observer: func(stage pipeline.Stage) {
			w.send(conn, wsMessageStage, wsStageData{Stage: stage})
		},
	})
	if err != nil {
		if app.HTTPStatus(app.KindOf(err)) >= http.StatusInternalServerError {
			w.log.WithError(err).Error("websocket analysis failed")
		}
		w.sendError(conn, err)
		return
	}
	w.send(conn, wsMessageResult, toMealResponse(meal))
}

func (w *WSHandler) sendError(conn *websocket.Conn, err error) {
	_, body := errorBody(err)
	w.send(conn, wsMessageError, wsErrorData{Reason: body.Reason, Message: body.Message})
}

func (w *WSHandler) send(conn *websocket.Conn, messageType string, data any) {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(wsOutgoing{Type: messageType, Data: data}); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		w.log.WithError(err).Debug("websocket write failed")
	}
}
