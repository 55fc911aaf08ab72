package signflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/cors"
)

// Server wires the registry and signer to HTTP transport: job submission
// plus the per-job SSE status stream.
type Server struct {
	cfg      *Config
	registry *Registry
	signer   *Signer
}

func NewServer(cfg *Config, registry *Registry, signer *Signer) *Server {
	return &Server{cfg: cfg, registry: registry, signer: signer}
}

// Handler returns the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("POST /run", s.handleRun)
	mux.HandleFunc("GET /run/{jobID}", s.handleStream)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{s.cfg.CORSOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "Cache-Control"},
		ExposedHeaders: []string{"Content-Type", "Connection", "Cache-Control"},
	})
	return c.Handler(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("API online"))
}

// handleRun registers a job and returns its id immediately; signing runs in
// its own goroutine. A panic escaping the signer is recovered into a
// job-level error event so observers still learn the outcome.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req SignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	job := s.registry.Create()
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				s.cfg.logError(LogEvent{Message: "unhandled signing failure", JobID: job.ID, Err: fmt.Errorf("%v", rec)})
				job.publish(fmt.Sprintf("Unhandled error: %v", rec), 0, true, "")
				job.setStatus(JobError)
			}
		}()
		// Jobs run to a terminal state regardless of the submitting
		// connection; there is no cancel operation.
		s.signer.Run(context.Background(), job, req)
	}()

	writeJSON(w, http.StatusOK, map[string]string{"jobId": job.ID})
}

// handleStream serves the live status stream for one job: full history
// first, then live events until the client goes away. Stream write failures
// are logged and end the connection; they never reach the job.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := r.PathValue("jobID")
	job, ok := s.registry.Get(id)
	if !ok {
		_ = writeSSE(w, ProgressEvent{Message: "Job not found", Error: true})
		flusher.Flush()
		return
	}

	sub := job.Hub().Subscribe()
	defer func() {
		job.Hub().Unsubscribe(sub)
		if job.Status().Terminal() {
			// Grace window counted from this disconnect, not from job
			// completion, so a late reader still gets its replay.
			s.registry.ScheduleEviction(id, s.cfg.EvictDelay)
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				s.cfg.logError(LogEvent{Message: "stream write failed", JobID: id, Err: err})
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
