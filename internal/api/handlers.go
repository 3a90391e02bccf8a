package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Jihanvall/rfm-app/internal/model"
	"github.com/Jihanvall/rfm-app/internal/pipeline"
	"github.com/Jihanvall/rfm-app/internal/report"
	"github.com/Jihanvall/rfm-app/internal/rfm"
	"github.com/Jihanvall/rfm-app/internal/tabular"
)

// requestError is a client mistake outside the pipeline's error taxonomy.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

// scoreResponse is the JSON body of score and train responses. Customers
// honour the segment filter; the summary always covers everyone.
type scoreResponse struct {
	RunID        string           `json:"run_id"`
	Mode         model.Mode       `json:"mode"`
	ModelName    string           `json:"model_name"`
	SnapshotDate string           `json:"snapshot_date"`
	Clusters     int              `json:"clusters"`
	Inertia      float64          `json:"inertia,omitempty"`
	Stats        rfm.CleanStats   `json:"stats"`
	Customers    []model.Customer `json:"customers"`
	Summary      report.Summary   `json:"summary"`
}

type whalesResponse struct {
	RunID     string           `json:"run_id"`
	Threshold float64          `json:"threshold"`
	Count     int              `json:"count"`
	Customers []model.Customer `json:"customers"`
}

func newScoreResponse(res *pipeline.Result, customers []model.Customer) scoreResponse {
	if customers == nil {
		customers = []model.Customer{}
	}
	return scoreResponse{
		RunID:        res.RunID,
		Mode:         res.Mode,
		ModelName:    res.ModelName,
		SnapshotDate: res.Snapshot.Format("2006-01-02"),
		Clusters:     res.Clusters,
		Inertia:      res.Inertia,
		Stats:        res.Stats,
		Customers:    customers,
		Summary:      report.Summarize(res.Customers),
	}
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	switch format {
	case "", "json", "csv", "xlsx":
	default:
		respondError(w, r, badRequest("format must be json, csv or xlsx"))
		return
	}

	res, ok := s.run(w, r, model.ModeInfer)
	if !ok {
		return
	}
	customers := report.FilterSegments(res.Customers, report.ParseSegments(r.URL.Query().Get("segments")))

	var err error
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="rfm_segments.csv"`)
		err = report.WriteCSV(w, customers)
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="rfm_segments.xlsx"`)
		err = report.WriteXLSX(w, customers)
	default:
		respondJSON(w, http.StatusOK, newScoreResponse(res, customers))
	}
	if err != nil {
		// Headers are already sent; all that is left is to log.
		zap.L().Error("api: write download",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	res, ok := s.run(w, r, model.ModeFit)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newScoreResponse(res, res.Customers))
}

func (s *Server) handleWhales(w http.ResponseWriter, r *http.Request) {
	threshold := s.cfg.WhaleThreshold
	if v := r.URL.Query().Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 {
			respondError(w, r, badRequest("threshold must be a non-negative number"))
			return
		}
		threshold = t
	}

	res, ok := s.run(w, r, model.ModeInfer)
	if !ok {
		return
	}
	whales := rfm.Whales(res.Customers, threshold)
	if whales == nil {
		whales = []model.Customer{}
	}
	respondJSON(w, http.StatusOK, whalesResponse{
		RunID:     res.RunID,
		Threshold: threshold,
		Count:     len(whales),
		Customers: whales,
	})
}

// run decodes the upload and executes the pipeline, writing the error
// response itself on failure.
func (s *Server) run(w http.ResponseWriter, r *http.Request, mode model.Mode) (*pipeline.Result, bool) {
	name, data, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}

	tbl, err := tabular.Parse(r.Context(), name, data, s.cfg.Ingest)
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}

	opts := s.cfg.Run
	opts.Mode = mode
	opts.Source = name
	opts.NoWait = true
	opts.OnRestart = nil

	res, err := s.pipeline.Run(r.Context(), tbl, opts)
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}
	return res, true
}

// readUpload accepts either a multipart "file" field or a raw body. For raw
// bodies the ?filename= parameter, then the Content-Type, picks the format.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	contentType := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return "", nil, err
			}
			return "", nil, badRequest("invalid multipart form: " + err.Error())
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, badRequest(`multipart field "file" is required`)
		}
		defer file.Close() //nolint:errcheck
		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, err
		}
		return header.Filename, data, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, err
	}
	if len(data) == 0 {
		return "", nil, badRequest("request body is empty")
	}

	name := r.URL.Query().Get("filename")
	if name == "" {
		name = "upload.csv"
		if strings.Contains(mediaType, "spreadsheetml") || strings.Contains(mediaType, "ms-excel") {
			name = "upload.xlsx"
		}
	}
	return name, data, nil
}
