package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

// APIPrefix is the path prefix of every route.
const APIPrefix = "/api/v1"

const (
	maxBodySize     = 1 << 16
	shutdownTimeout = 5 * time.Second
)

// Status is the response of GET /status.
type Status struct {
	Running bool           `json:"running"`
	Latest  *ad5933.Sample `json:"latest,omitempty"`
	Samples int            `json:"samples"`
	Config  ad5933.Config  `json:"config"`
}

// ConfigResponse is the response of PUT /config.
type ConfigResponse struct {
	Config      ad5933.Config       `json:"config"`
	Adjustments []ad5933.Adjustment `json:"adjustments,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// WithLogger sets the logger for the server
func WithLogger(logger *slog.Logger) func(s *Server) {
	return func(s *Server) {
		s.logger = logger.With(slog.String("component", "control"))
	}
}

// WithStateStore persists the configuration and the latest sample
func WithStateStore(st *StateStore) func(s *Server) {
	return func(s *Server) {
		s.state = st
	}
}

// WithHub serves the live sample stream from h. The hub must also be
// registered as the sweeper sample handler.
func WithHub(h *Hub) func(s *Server) {
	return func(s *Server) {
		s.hub = h
	}
}

// WithResultHandler registers a callback for every finished sweep run
func WithResultHandler(fn func(ad5933.SweepResult)) func(s *Server) {
	return func(s *Server) {
		s.onResult = fn
	}
}

// Server exposes a Sweeper over HTTP.
type Server struct {
	sweeper  *ad5933.Sweeper
	state    *StateStore
	hub      *Hub
	onResult func(ad5933.SweepResult)
	logger   *slog.Logger
	router   *mux.Router

	mu       sync.Mutex
	running  bool
	consumed sync.WaitGroup
}

// NewServer creates a control server for sweeper.
func NewServer(sweeper *ad5933.Sweeper, options ...func(s *Server)) *Server {
	s := Server{
		sweeper: sweeper,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	if s.hub == nil {
		s.hub = NewHub(s.logger)
	}

	s.configureRouter()
	return &s
}

// Restore applies the configuration saved in the state store, if any.
func (s *Server) Restore() ([]ad5933.Adjustment, error) {
	if s.state == nil {
		return nil, nil
	}

	c, ok, err := s.state.Config()
	if err != nil || !ok {
		return nil, err
	}

	adjustments, err := s.sweeper.Device().Configure(c)
	if err != nil {
		return adjustments, fmt.Errorf("restoring config: %w", err)
	}

	s.logger.Info("configuration restored",
		slog.Float64("start", c.StartFrequency),
		slog.Int("steps", c.NumSteps))
	return adjustments, nil
}

// Handler returns the HTTP handler with recovery and access logging.
func (s *Server) Handler() http.Handler {
	h := handlers.CombinedLoggingHandler(logWriter{s.logger}, s.router)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
	)(h)
}

// Run serves the API on addr until ctx is done, then stops sweeping.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", slog.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err = httpServer.Shutdown(shutdownCtx)
		cancel()
	}

	s.stop()
	s.hub.Close()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Wait blocks until the result consumer of the last started sweep exits.
func (s *Server) Wait() {
	s.consumed.Wait()
}

func (s *Server) configureRouter() {
	s.router = mux.NewRouter()
	api := s.router.PathPrefix(APIPrefix).Subrouter()

	api.HandleFunc("/status", s.handleStatus()).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleConfig()).Methods(http.MethodPut)
	api.HandleFunc("/commands/{command}", s.handleCommand()).Methods(http.MethodPost)
	api.HandleFunc("/samples", s.handleSamples()).Methods(http.MethodGet)
	api.Handle("/stream", s.hub).Methods(http.MethodGet)
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := Status{
			Running: s.isRunning(),
			Samples: len(s.sweeper.Samples()),
			Config:  s.sweeper.Device().Config(),
		}

		if latest, ok := s.sweeper.Latest(); ok {
			st.Latest = &latest
		} else if s.state != nil {
			if saved, ok, err := s.state.Latest(); err == nil && ok {
				st.Latest = &saved
			}
		}

		writeJSON(w, http.StatusOK, st)
	}
}

func (s *Server) handleConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.isRunning() {
			s.writeError(w, ad5933.ErrSweepInProgress)
			return
		}

		// fields missing from the body keep their current value
		c := s.sweeper.Device().Config()
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&c); err != nil {
			s.writeError(w, fmt.Errorf("%w: %v", errInvalidBody, err))
			return
		}

		adjustments, err := s.sweeper.Device().Configure(c)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.persistConfig()

		writeJSON(w, http.StatusOK, ConfigResponse{
			Config:      s.sweeper.Device().Config(),
			Adjustments: adjustments,
		})
	}
}

func (s *Server) handleCommand() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["command"]
		cmd, ok := ParseCommand(strings.ToLower(name))
		if !ok {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("unknown command %q", name)})
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: %v", errInvalidBody, err))
			return
		}

		resp, err := commandHandlers[cmd](r.Context(), s, body)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.logger.Info("command executed", slog.String("command", string(cmd)))
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleSamples() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.sweeper.Samples())
	}
}

// start begins background sweeping and consumes its results.
func (s *Server) start() error {
	results := make(chan ad5933.SweepResult)
	done, err := s.sweeper.Begin(context.Background(), results)
	if err != nil {
		return err
	}

	// the consumer of the previous run may still be draining
	s.consumed.Wait()

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.consumed.Add(1)
	go s.consume(results, done)
	return nil
}

// stop cancels sweeping and waits until the last result is consumed. It
// reports whether a sweep was running.
func (s *Server) stop() bool {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	s.sweeper.Stop()
	s.consumed.Wait()
	return running
}

// isRunning also covers a sweep goroutine that has not set the sweeper
// active flag yet.
func (s *Server) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running || s.sweeper.IsRunning()
}

func (s *Server) consume(results <-chan ad5933.SweepResult, done <-chan error) {
	defer s.consumed.Done()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case r := <-results:
			s.handleResult(r)

		case err, ok := <-done:
			if ok && err != nil {
				s.logger.Error("sweeping stopped", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (s *Server) handleResult(r ad5933.SweepResult) {
	if s.state != nil && len(r.Samples) > 0 {
		if err := s.state.SaveLatest(r.Samples[len(r.Samples)-1]); err != nil {
			s.logger.Warn("saving latest sample", slog.String("error", err.Error()))
		}
	}

	if s.onResult != nil {
		s.onResult(r)
	}
}

func (s *Server) persistConfig() {
	if s.state == nil {
		return
	}
	if err := s.state.SaveConfig(s.sweeper.Device().Config()); err != nil {
		s.logger.Warn("saving config", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var busErr *ad5933.BusError
	switch {
	case errors.Is(err, ad5933.ErrSweepInProgress), errors.Is(err, ad5933.ErrNotRunning):
		status = http.StatusConflict
	case errors.Is(err, errInvalidBody):
		status = http.StatusBadRequest
	case errors.Is(err, ad5933.ErrTemperatureTimeout):
		status = http.StatusGatewayTimeout
	case errors.As(err, &busErr):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// logWriter feeds access log lines into slog.
type logWriter struct {
	logger *slog.Logger
}

func (l logWriter) Write(p []byte) (int, error) {
	l.logger.Debug(strings.TrimSpace(string(p)))
	return len(p), nil
}

type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error(fmt.Sprint(v...))
}
