package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joseph-ayodele/label-checker/internal/common"
	"github.com/joseph-ayodele/label-checker/internal/entity"
	"github.com/joseph-ayodele/label-checker/internal/jobs"
)

const multipartMemory = 32 << 20

type createJobRequest struct {
	TotalFiles      int                      `json:"total_files"`
	ApplicationData []entity.ReferenceRecord `json:"application_data"`
}

type createJobResponse struct {
	JobID             string   `json:"job_id"`
	DuplicateLabelIDs []string `json:"duplicate_label_ids"`
}

type uploadResponse struct {
	Files []jobs.Ack `json:"files"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "active_jobs": s.jobs.ActiveJobs()})
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, common.InvalidArgument("invalid request body: %v", err))
		return
	}
	id, dups, err := s.jobs.CreateJob(r.Context(), req.TotalFiles, req.ApplicationData)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if dups == nil {
		dups = []string{}
	}
	writeJSON(w, http.StatusOK, createJobResponse{JobID: id, DuplicateLabelIDs: dups})
}

func (s *Server) uploadFiles(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := s.jobs.Get(jobID); err != nil {
		s.writeError(w, r, err)
		return
	}

	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, common.PayloadTooLarge("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeError(w, r, common.InvalidArgument("invalid multipart upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.writeError(w, r, common.InvalidArgument("no files in upload"))
		return
	}

	var indices []int
	if raw := r.FormValue("client_indices"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &indices); err != nil {
			s.writeError(w, r, common.InvalidArgument("client_indices must be a JSON array of integers"))
			return
		}
	}

	uploads, closeAll, err := openUploads(headers)
	defer closeAll()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	acks, err := s.jobs.SubmitItems(r.Context(), jobID, uploads, indices)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Files: acks})
}

func openUploads(headers []*multipart.FileHeader) ([]jobs.Upload, func(), error) {
	files := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	uploads := make([]jobs.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		files = append(files, f)
		uploads = append(uploads, jobs.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}

func (s *Server) completeJob(w http.ResponseWriter, r *http.Request) {
	if _, err := s.jobs.CompleteJob(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) streamResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	sse := newEventWriter(w)
	err := s.jobs.Stream(r.Context(), jobID, s.heartbeat, sse.Write)
	if err == nil {
		return
	}
	if !sse.started {
		s.writeError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "stream ended early", "job_id", jobID, "error", err)
}

func (s *Server) downloadReport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.jobs.Get(jobID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := s.reports.JobReportXLSX(r.Context(), jobID, job.Outcomes(), job.Unmatched())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="label-report-%s.xlsx"`, jobID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
