package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldline/geostack/internal/dataset"
	apperrors "github.com/fieldline/geostack/internal/errors"
	"github.com/fieldline/geostack/internal/grid"
	"github.com/fieldline/geostack/internal/reading"
	"github.com/fieldline/geostack/internal/stack"
)

// statusFor maps an error to its HTTP status via the error taxonomy.
func statusFor(err error) int {
	switch {
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsCapacity(err):
		return http.StatusTooManyRequests
	case apperrors.IsConcurrency(err):
		return http.StatusConflict
	case apperrors.IsValidation(err):
		return http.StatusBadRequest
	case apperrors.IsPipeline(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the uniform error envelope: message, machine-readable kind,
// and whether the identical request may be retried later.
func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"error":     err.Error(),
		"kind":      apperrors.Kind(err),
		"retriable": apperrors.Retriable(err),
	})
}

// ============================================================================
// Ingestion
// ============================================================================

type readingRequest struct {
	StationID string              `json:"station_id" binding:"required"`
	Timestamp time.Time           `json:"timestamp" binding:"required"`
	Fields    map[string]*float64 `json:"fields" binding:"required"`
}

func (s *Server) handleSubmitReading(c *gin.Context) {
	var req readingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "invalid_request"})
		return
	}

	rec := reading.New(req.StationID, req.Timestamp, req.Fields)
	if err := s.svc.SubmitReading(rec); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "buffered"})
}

func (s *Server) handleListStations(c *gin.Context) {
	stations := s.svc.Stations()
	c.JSON(http.StatusOK, gin.H{"data": stations, "meta": gin.H{"count": len(stations)}})
}

func (s *Server) handleBufferStatus(c *gin.Context) {
	status, err := s.svc.BufferStatus(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"station_id":   status.StationID,
		"size":         status.Size,
		"max_size":     status.MaxSize,
		"auto_process": status.AutoProcess,
		"threshold":    status.Threshold,
		"appended":     status.Appended,
		"drained":      status.Drained,
		"rejected":     status.Rejected,
	}})
}

func (s *Server) handleProcessBuffer(c *gin.Context) {
	report, err := s.svc.ProcessBuffer(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) handleClearBuffer(c *gin.Context) {
	discarded, err := s.svc.ClearBuffer(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"discarded": discarded}})
}

// ============================================================================
// Datasets
// ============================================================================

type datasetRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) handleCreateDataset(c *gin.Context) {
	var req datasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "invalid_request"})
		return
	}

	d, err := s.svc.CreateDataset(req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": d})
}

func (s *Server) handleListDatasets(c *gin.Context) {
	datasets := s.svc.Datasets()
	c.JSON(http.StatusOK, gin.H{"data": datasets, "meta": gin.H{"count": len(datasets)}})
}

type windowRequest struct {
	Start time.Time `json:"start" binding:"required"`
	End   time.Time `json:"end" binding:"required"`
}

func (w windowRequest) window() grid.TimeWindow {
	return grid.TimeWindow{Start: w.Start, End: w.End}
}

type versionRequest struct {
	Variables            []string      `json:"variables" binding:"required"`
	NativeResolution     float64       `json:"native_resolution" binding:"required"`
	NativeTimeResolution string        `json:"native_time_resolution" binding:"required"`
	Coverage             windowRequest `json:"coverage" binding:"required"`
}

func (s *Server) handlePublishVersion(c *gin.Context) {
	var req versionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "invalid_request"})
		return
	}

	step, err := grid.ParseTimeResolution(req.NativeTimeResolution)
	if err != nil {
		fail(c, err)
		return
	}

	v, err := s.svc.PublishVersion(c.Param("id"), dataset.VersionSpec{
		Variables:            req.Variables,
		NativeResolution:     grid.Resolution(req.NativeResolution),
		NativeTimeResolution: step,
		Coverage:             req.Coverage.window(),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": v})
}

func (s *Server) handleListVersions(c *gin.Context) {
	versions := s.svc.Versions(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"data": versions, "meta": gin.H{"count": len(versions)}})
}

// ============================================================================
// Stacks
// ============================================================================

type itemRequest struct {
	VersionID          string        `json:"version_id" binding:"required"`
	Variables          []string      `json:"variables" binding:"required"`
	Window             windowRequest `json:"window" binding:"required"`
	TimeResolution     *string       `json:"time_resolution"`
	ResolutionOverride *float64      `json:"resolution_override"`
}

func (r itemRequest) spec() (stack.ItemSpec, error) {
	spec := stack.ItemSpec{
		VersionID: r.VersionID,
		Variables: r.Variables,
		Window:    r.Window.window(),
	}
	if r.TimeResolution != nil {
		step, err := grid.ParseTimeResolution(*r.TimeResolution)
		if err != nil {
			return stack.ItemSpec{}, err
		}
		spec.TimeResolution = &step
	}
	if r.ResolutionOverride != nil {
		res := grid.Resolution(*r.ResolutionOverride)
		spec.ResolutionOverride = &res
	}
	return spec, nil
}

type stackRequest struct {
	OutputFormat      string        `json:"output_format" binding:"required"`
	SpatialResolution *float64      `json:"spatial_resolution"`
	Items             []itemRequest `json:"items"`
}

func (s *Server) handleCreateStack(c *gin.Context) {
	var req stackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "invalid_request"})
		return
	}

	spec := stack.Spec{OutputFormat: req.OutputFormat}
	if req.SpatialResolution != nil {
		res := grid.Resolution(*req.SpatialResolution)
		spec.SpatialResolution = &res
	}
	for _, item := range req.Items {
		itemSpec, err := item.spec()
		if err != nil {
			fail(c, err)
			return
		}
		spec.Items = append(spec.Items, itemSpec)
	}

	st, err := s.svc.CreateStack(spec)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": st})
}

func (s *Server) handleListStacks(c *gin.Context) {
	stacks := s.svc.Stacks()
	c.JSON(http.StatusOK, gin.H{"data": stacks, "meta": gin.H{"count": len(stacks)}})
}

func (s *Server) handleGetStack(c *gin.Context) {
	st, err := s.svc.Stack(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

func (s *Server) handleAddItem(c *gin.Context) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "invalid_request"})
		return
	}

	spec, err := req.spec()
	if err != nil {
		fail(c, err)
		return
	}

	item, err := s.svc.AddStackItem(c.Param("id"), spec)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) handleRemoveItem(c *gin.Context) {
	if err := s.svc.RemoveStackItem(c.Param("id"), c.Param("item_id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

type reorderRequest struct {
	ItemIDs []string `json:"item_ids" binding:"required"`
}

func (s *Server) handleReorder(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "invalid_request"})
		return
	}

	if err := s.svc.ReorderStack(c.Param("id"), req.ItemIDs); err != nil {
		fail(c, err)
		return
	}

	st, err := s.svc.Stack(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

type generateRequest struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "invalid_request"})
			return
		}
	}

	st, err := s.svc.GenerateStack(c.Request.Context(), c.Param("id"),
		time.Duration(req.TimeoutSeconds)*time.Second)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

func (s *Server) handleArtifact(c *gin.Context) {
	data, contentType, ref, err := s.svc.Artifact(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("X-Artifact-Key", ref.Key)
	c.Header("X-Artifact-Seq", strconv.FormatUint(ref.Seq, 10))
	c.Data(http.StatusOK, contentType, data)
}
