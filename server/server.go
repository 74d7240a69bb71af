// Package server exposes the fatigue pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RyanBlaney/sonido-fatigue/fatigue"
	"github.com/RyanBlaney/sonido-fatigue/fatigue/config"
	"github.com/RyanBlaney/sonido-fatigue/fault"
	"github.com/RyanBlaney/sonido-fatigue/logging"
)

// Upload field and fixed client-facing messages
const (
	FileField         = "file"
	MsgNoFilePart     = "No file part in the request."
	MsgNoFileSelected = "No file selected."
	MsgTooLarge       = "Uploaded file is too large."
)

// Predictor is the part of the pipeline the server needs
type Predictor interface {
	Predict(ctx context.Context, data []byte) ([]fatigue.Prediction, error)
}

// PredictResponse is the success body of POST /predict
type PredictResponse struct {
	Predictions []fatigue.Prediction `json:"predictions"`
}

// ErrorResponse is the failure body of every endpoint
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

var kindMessages = map[fault.Kind]string{
	fault.KindInput:             "Invalid audio upload.",
	fault.KindDecode:            "Failed to decode audio.",
	fault.KindInsufficientAudio: "Audio too short for analysis.",
	fault.KindExtraction:        "Failed to extract features.",
	fault.KindScaling:           "Failed to scale features.",
	fault.KindInference:         "Failed to classify audio.",
	fault.KindInternal:          "Internal Server Error",
}

// Server routes HTTP requests to a Predictor
type Server struct {
	config    config.ServerConfig
	predictor Predictor
	engine    *gin.Engine
	logger    logging.Logger
}

// New builds the router. gatherer backs GET /metrics; nil means the default
// Prometheus registry.
func New(cfg config.ServerConfig, predictor Predictor, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:    cfg,
		predictor: predictor,
		engine:    gin.New(),
		logger: logging.WithFields(logging.Fields{
			"component": "http_server",
		}),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(requestID(s.logger))

	s.engine.POST("/predict", s.handlePredict)
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", logging.Fields{"addr": s.config.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handlePredict(c *gin.Context) {
	logger := s.logger.WithContext(c.Request.Context()).WithFields(logging.Fields{
		"function": "handlePredict",
	})

	if s.config.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes)
	}

	data, filename, rejected := readUpload(c.Request)
	// The middleware swapped c.Request, so net/http cannot clean this form up
	defer func() {
		if form := c.Request.MultipartForm; form != nil {
			_ = form.RemoveAll()
		}
	}()
	if rejected != nil {
		c.JSON(rejected.status, ErrorResponse{Error: rejected.message})
		return
	}

	predictions, err := s.predictor.Predict(c.Request.Context(), data)
	if err != nil {
		kind := fault.KindOf(err)
		logger.Debug("Prediction rejected", logging.Fields{
			"filename": filename,
			"kind":     kind,
			"error":    err.Error(),
		})
		c.JSON(kind.HTTPStatus(), ErrorResponse{
			Error:   kindMessages[kind],
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, PredictResponse{Predictions: predictions})
}

type uploadRejection struct {
	status  int
	message string
}

func rejectUpload(message string) *uploadRejection {
	return &uploadRejection{status: http.StatusBadRequest, message: message}
}

// readUpload returns the bytes of the "file" part, or why there are none.
// A part named "file" with an empty filename lands in the form values,
// which is how an empty file picker submits.
func readUpload(r *http.Request) ([]byte, string, *uploadRejection) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", &uploadRejection{status: http.StatusRequestEntityTooLarge, message: MsgTooLarge}
		}
		return nil, "", rejectUpload(MsgNoFilePart)
	}

	files := r.MultipartForm.File[FileField]
	if len(files) == 0 {
		if _, ok := r.MultipartForm.Value[FileField]; ok {
			return nil, "", rejectUpload(MsgNoFileSelected)
		}
		return nil, "", rejectUpload(MsgNoFilePart)
	}

	header := files[0]
	if header.Filename == "" {
		return nil, "", rejectUpload(MsgNoFileSelected)
	}

	f, err := header.Open()
	if err != nil {
		return nil, header.Filename, rejectUpload(MsgNoFilePart)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, header.Filename, rejectUpload(MsgNoFilePart)
	}
	return data, header.Filename, nil
}
