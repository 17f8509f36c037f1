package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"encoding/json"

	"porter/internal/api"
	"porter/internal/config"
	"porter/internal/logging"
	"porter/internal/records"
	"porter/internal/services"
)

// maxManifestBytes bounds the accepted manifest body. Manifests are path
// lists, not content, so anything bigger indicates a caller bug.
const maxManifestBytes = 8 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/projects", authMiddleware(token, srv.handleProjects))
	mux.HandleFunc("/api/projects/", authMiddleware(token, srv.handleProject))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound listen address, empty before start.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		RecordDBPath: status.RecordDBPath,
		LockFilePath: status.LockFilePath,
		Projects:     api.FromStatusCounts(status.Projects),
		StageHealth:  api.FromStageHealth(status.StageHealth),
	})
}

func (s *apiServer) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listProjects(w, r)
	case http.MethodPost:
		s.createProject(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) listProjects(w http.ResponseWriter, r *http.Request) {
	var statuses []records.ProjectStatus
	for _, value := range r.URL.Query()["status"] {
		parsed, ok := records.ParseProjectStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, parsed)
	}
	projects, err := s.daemon.ListProjects(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.ProjectListResponse{Projects: api.FromProjects(projects)})
}

// createProject accepts a manifest body and registers the project.
// Validation failures surface synchronously as 400; the pipeline work
// itself happens asynchronously on scheduler ticks, hence 202.
func (s *apiServer) createProject(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxManifestBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read manifest body: "+err.Error())
		return
	}
	project, processing, nonProcessing, err := s.daemon.CreateProject(r.Context(), raw)
	if err != nil {
		switch {
		case services.IsValidationError(err):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, records.ErrDuplicateProject):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.CreateProjectResponse{
		Project:            api.FromProject(project),
		ProcessingBatches:  processing,
		NonProcessingCount: nonProcessing,
	})
}

func (s *apiServer) handleProject(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	idStr, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.describeProject(w, r, id)
	case action == "retry" && r.Method == http.MethodPost:
		s.retryProject(w, r, id)
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *apiServer) describeProject(w http.ResponseWriter, r *http.Request, id int64) {
	detail, err := s.daemon.DescribeProject(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if detail == nil {
		s.writeError(w, http.StatusNotFound, "project not found")
		return
	}

	payload := api.ProjectDetailResponse{
		Project:  api.FromProject(detail.Project),
		Batches:  make([]api.Batch, 0, len(detail.Batches)),
		Tracking: api.FromTracking(detail.Tracking),
		Retries:  api.FromRetries(detail.Retries),
		Audit:    api.FromAudit(detail.Audit),
	}
	for _, batch := range detail.Batches {
		payload.Batches = append(payload.Batches, api.FromBatch(batch))
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) retryProject(w http.ResponseWriter, r *http.Request, id int64) {
	resumed, status, err := s.daemon.ResumeProject(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.RetryResponse{Resumed: resumed, Status: string(status)})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
