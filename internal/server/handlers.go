package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/KaramelBytes/dashspec-cli/internal/dashboard"
	"github.com/KaramelBytes/dashspec-cli/internal/store"
)

// DetectRequest is the body of POST /v1/detect.
type DetectRequest struct {
	DatasetName string                    `json:"dataset_name"`
	Columns     []dashboard.ColumnProfile `json:"columns"`
}

// DetectResponse is the answer of POST /v1/detect.
type DetectResponse struct {
	Detection  dashboard.Detection          `json:"detection"`
	Classified []dashboard.ClassifiedColumn `json:"classified"`
}

// ValidateRequest is the body of POST /v1/validate.
type ValidateRequest struct {
	Specification *dashboard.Specification  `json:"specification"`
	Columns       []dashboard.ColumnProfile `json:"columns"`
}

// PreviewRequest is the body of POST /v1/preview.
type PreviewRequest struct {
	Specification *dashboard.Specification `json:"specification"`
	Rows          []dashboard.Row          `json:"rows"`
	Source        dashboard.PreviewSource  `json:"source,omitempty"`
}

// CreateDashboardRequest is the body of POST /v1/dashboards.
type CreateDashboardRequest struct {
	Name    string            `json:"name"`
	Request dashboard.Request `json:"request"`
}

// CreateDashboardResponse carries the stored dashboard and the compile result.
type CreateDashboardResponse struct {
	Dashboard *store.Dashboard `json:"dashboard,omitempty"`
	Result    dashboard.Result `json:"result"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "dashspec"})
}

func (s *Server) compile(w http.ResponseWriter, r *http.Request) {
	var req dashboard.Request
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.compiler.Compile(r.Context(), req))
}

func (s *Server) detect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if !s.decode(w, r, &req) {
		return
	}
	cls := dashboard.NewClassifier(s.compiler.Rules()).Classify(req.Columns)
	writeJSON(w, http.StatusOK, DetectResponse{
		Detection:  s.compiler.Detect(req.DatasetName, req.Columns),
		Classified: cls,
	})
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.compiler.Validate(req.Specification, req.Columns))
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Specification == nil {
		writeError(w, http.StatusBadRequest, "specification is required", "")
		return
	}
	writeJSON(w, http.StatusOK, s.compiler.Preview(req.Rows, req.Specification, req.Source))
}

func (s *Server) createDashboard(w http.ResponseWriter, r *http.Request) {
	var req CreateDashboardRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.compiler.Compile(r.Context(), req.Request)
	if !res.Committable() {
		writeJSON(w, http.StatusUnprocessableEntity, CreateDashboardResponse{Result: res})
		return
	}
	d := store.FromResult(req.Name, req.Request, res)
	if err := s.store.Save(r.Context(), &d); err != nil {
		if errors.Is(err, store.ErrInvalidSpecification) {
			writeJSON(w, http.StatusUnprocessableEntity, CreateDashboardResponse{Result: res})
			return
		}
		s.logger.Error().Err(err).Msg("save dashboard failed")
		writeError(w, http.StatusInternalServerError, "save failed", err.Error())
		return
	}
	s.logger.Info().Str("id", d.ID).Str("name", d.Name).Msg("dashboard committed")
	writeJSON(w, http.StatusCreated, CreateDashboardResponse{Dashboard: &d, Result: res})
}

func (s *Server) listDashboards(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list dashboards failed")
		writeError(w, http.StatusInternalServerError, "list failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) deleteDashboard(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "dashboard not found", "")
		return
	}
	s.logger.Error().Err(err).Msg("store failed")
	writeError(w, http.StatusInternalServerError, "store failed", err.Error())
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return false
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "trailing data after JSON object")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{"error": message}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}
