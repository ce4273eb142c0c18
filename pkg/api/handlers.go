package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ssargent/poreread/pkg/reader"
)

// Server holds the API server state
type Server struct {
	registry *Registry
	config   ServerConfig
	metrics  *Metrics
	logger   *zap.Logger
}

// NewServer creates a new API server
func NewServer(registry *Registry, config ServerConfig, metrics *Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		registry: registry,
		config:   config,
		metrics:  metrics,
		logger:   logger,
	}
}

// handleHealth reports that the server is up and how many experiments are open
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]interface{}{
		"status":      "healthy",
		"experiments": s.registry.Len(),
	})
}

// handleOpen opens the experiment containing the posted path
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid JSON in request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		sendError(w, "path is required", http.StatusBadRequest)
		return
	}

	path := req.Path
	if !filepath.IsAbs(path) && s.config.DataDir != "" {
		path = filepath.Join(s.config.DataDir, path)
	}

	summary, err := s.registry.Open(path, req.Format)
	formatName := req.Format
	if summary != nil {
		formatName = summary.Format
	}
	if formatName == "" {
		formatName = "auto"
	}
	s.metrics.RecordOpen(formatName, err == nil)
	if err != nil {
		s.sendReadError(w, "Failed to open experiment", err)
		return
	}
	s.metrics.SetExperimentsOpen(s.registry.Len())

	sendJSON(w, summary, http.StatusCreated)
}

// handleList lists the open experiments
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, s.registry.List())
}

// handleGetExperiment describes one experiment
func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	id, ok := experimentID(w, r)
	if !ok {
		return
	}
	summary, err := s.registry.Summary(id)
	if err != nil {
		s.sendReadError(w, "Failed to get experiment", err)
		return
	}
	sendSuccess(w, summary)
}

// handleClose closes an experiment and releases its files
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id, ok := experimentID(w, r)
	if !ok {
		return
	}
	if err := s.registry.Close(id); err != nil {
		s.sendReadError(w, "Failed to close experiment", err)
		return
	}
	s.metrics.SetExperimentsOpen(s.registry.Len())
	sendSuccess(w, map[string]string{"message": "Experiment closed"})
}

// handleWindow returns a window of one channel. start and length are in
// seconds; raw=true returns the raw codes with their conversion parameters.
func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	exp, channel, ok := s.channel(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	start, err := floatParam(q.Get("start"), 0)
	if err != nil {
		sendError(w, "Invalid start: "+err.Error(), http.StatusBadRequest)
		return
	}
	if q.Get("length") == "" {
		sendError(w, "length is required", http.StatusBadRequest)
		return
	}
	length, err := floatParam(q.Get("length"), 0)
	if err != nil {
		sendError(w, "Invalid length: "+err.Error(), http.StatusBadRequest)
		return
	}
	if s.config.MaxWindowSeconds > 0 && length > s.config.MaxWindowSeconds {
		sendError(w, fmt.Sprintf("length %gs exceeds the limit of %gs; use the stream endpoint", length, s.config.MaxWindowSeconds),
			http.StatusBadRequest)
		return
	}
	raw := q.Get("raw") == "true"

	resp := WindowResponse{
		Channel:    channel,
		Samplerate: exp.Samplerate(),
	}

	began := time.Now()
	n := 0
	if raw {
		var win *reader.RawWindow
		win, err = exp.ReadWindowRaw(channel, start, length)
		if err == nil {
			resp.Raw = &RawValues{
				DType:   win.Data.DType().String(),
				Codes:   win.Data.Floats(),
				Scale:   win.Scale,
				Offset:  win.Offset,
				Bitmask: win.Bitmask,
			}
			n = win.Data.Len()
		}
	} else {
		resp.Values, err = exp.ReadWindow(channel, start, length)
		n = len(resp.Values)
	}

	mode := "window"
	if raw {
		mode = "raw"
	}
	s.metrics.RecordRead(mode, err == nil, n, time.Since(began))
	if err == nil {
		resp.Start, err = exp.StartIndex(channel, start)
	}
	if err != nil {
		s.sendReadError(w, "Failed to read window", err)
		return
	}
	if resp.Values == nil && resp.Raw == nil {
		resp.Values = []float64{}
	}
	sendSuccess(w, resp)
}

// handleStream streams a range of one channel as newline-delimited JSON
// chunks. start, total and chunk are in seconds; a zero total streams to the
// end of the channel.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	exp, channel, ok := s.channel(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	start, err := floatParam(q.Get("start"), 0)
	if err != nil {
		sendError(w, "Invalid start: "+err.Error(), http.StatusBadRequest)
		return
	}
	total, err := floatParam(q.Get("total"), 0)
	if err != nil {
		sendError(w, "Invalid total: "+err.Error(), http.StatusBadRequest)
		return
	}
	chunk, err := floatParam(q.Get("chunk"), s.config.ChunkSeconds)
	if err != nil {
		sendError(w, "Invalid chunk: "+err.Error(), http.StatusBadRequest)
		return
	}

	stream, err := exp.Stream(channel, start, total, chunk)
	if err != nil {
		s.sendReadError(w, "Failed to start stream", err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)

	began := time.Now()
	n := 0
	for {
		if r.Context().Err() != nil {
			break
		}
		cursor := stream.Cursor()
		if !stream.Next() {
			break
		}
		if err := enc.Encode(StreamChunk{Start: cursor, Values: stream.Chunk()}); err != nil {
			s.logger.Debug("stream client went away", zap.Error(err))
			break
		}
		_ = rc.Flush()
		n += len(stream.Chunk())
	}

	if err := stream.Err(); err != nil {
		s.logger.Warn("stream ended early", zap.Int("channel", channel), zap.Error(err))
	}
	s.metrics.RecordRead("stream", stream.Err() == nil, n, time.Since(began))
}

// channel resolves the experiment and channel of a request
func (s *Server) channel(w http.ResponseWriter, r *http.Request) (*reader.Experiment, int, bool) {
	id, ok := experimentID(w, r)
	if !ok {
		return nil, 0, false
	}
	exp, err := s.registry.Get(id)
	if err != nil {
		s.sendReadError(w, "Failed to get experiment", err)
		return nil, 0, false
	}
	channel, err := strconv.Atoi(chi.URLParam(r, "channel"))
	if err != nil {
		sendError(w, "Invalid channel", http.StatusBadRequest)
		return nil, 0, false
	}
	return exp, channel, true
}

func (s *Server) sendReadError(w http.ResponseWriter, message string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error(message, zap.Error(err))
	}
	sendError(w, fmt.Sprintf("%s: %v", message, err), code)
}

func experimentID(w http.ResponseWriter, r *http.Request) (ksuid.KSUID, bool) {
	id, err := ksuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, "Invalid experiment id", http.StatusBadRequest)
		return ksuid.Nil, false
	}
	return id, true
}

func floatParam(v string, def float64) (float64, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}
