package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	climdashrpc "climdash/pkg/api/climdashrpc/v1"
	"climdash/pkg/audit"
	"climdash/pkg/dataset"
	"climdash/pkg/resolver"
	"climdash/pkg/types"

	"github.com/gin-gonic/gin"
)

// 响应头：/data 返回的数据来自哪里
const (
	HeaderBackend  = "X-Climdash-Backend"
	HeaderKind     = "X-Climdash-Kind"
	HeaderLocation = "X-Climdash-Location"
	HeaderCached   = "X-Climdash-Cached"
)

type errorResponse struct {
	Error    string             `json:"error"`
	Detail   string             `json:"detail,omitempty"`
	Attempts []resolver.Attempt `json:"attempts,omitempty"`
}

type historyResponse struct {
	Key     string                   `json:"key,omitempty"`
	Records []audit.ResolutionRecord `json:"records"`
}

func (s *Server) handleResolve(c *gin.Context) {
	var q climdashrpc.Query
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	ref, p, err := q.Target()
	if err != nil {
		writeError(c, err)
		return
	}

	var res *resolver.Result
	if p != "" {
		res, err = s.resolver.ResolvePath(c.Request.Context(), p)
	} else {
		res, err = s.resolver.Resolve(c.Request.Context(), ref)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleData 解析后直接把数据流给调用方
func (s *Server) handleData(c *gin.Context) {
	var q climdashrpc.Query
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	ref, p, err := q.Target()
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	var (
		rc  io.ReadCloser
		res *resolver.Result
	)
	if p != "" {
		rc, res, err = s.resolver.OpenPath(ctx, p)
	} else {
		rc, res, err = s.resolver.Open(ctx, ref)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Type", contentType(res.Handle.Path))
	c.Header(HeaderBackend, res.Handle.Backend)
	c.Header(HeaderKind, res.Handle.Kind.String())
	c.Header(HeaderLocation, res.Handle.Location)
	c.Header(HeaderCached, strconv.FormatBool(res.Cached))
	c.Status(http.StatusOK)

	if n, err := io.Copy(c.Writer, rc); err != nil {
		// 状态码已经发出，只能记录
		s.logger.WarnContext(ctx, "data stream interrupted",
			"location", res.Handle.Location, "sent", n, "error", err)
	}
}

func (s *Server) handleCatalog(c *gin.Context) {
	var req climdashrpc.CatalogRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	listing, err := s.resolver.Catalog(c.Request.Context(), req.Dir)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// handleHistory 返回审计记录；key 为空时返回最近的记录
func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "audit trail disabled"})
		return
	}

	limit := audit.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid limit", Detail: raw})
			return
		}
		limit = n
	}

	key := c.Query("key")
	var (
		records []audit.ResolutionRecord
		err     error
	)
	if key != "" {
		records, err = s.history.ForKey(c.Request.Context(), key, limit)
	} else {
		records, err = s.history.Recent(c.Request.Context(), limit)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	if records == nil {
		records = []audit.ResolutionRecord{}
	}
	c.JSON(http.StatusOK, historyResponse{Key: key, Records: records})
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReadyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.readyTimeout)
	defer cancel()

	if err := s.resolver.CheckReadiness(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// writeError 把领域错误映射为 HTTP 状态码
func writeError(c *gin.Context, err error) {
	var ue *resolver.UnavailableError
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: resolver.ErrNotFound.Error(), Detail: err.Error()})
	case errors.As(err, &ue):
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, errorResponse{
			Error:    resolver.ErrBackendUnavailable.Error(),
			Detail:   err.Error(),
			Attempts: ue.Attempts,
		})
	case errors.Is(err, resolver.ErrBackendUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: resolver.ErrBackendUnavailable.Error(), Detail: err.Error()})
	case errors.Is(err, dataset.ErrInvalidRef),
		errors.Is(err, dataset.ErrInvalidPath),
		errors.Is(err, climdashrpc.ErrAmbiguousQuery):
		badRequest(c, err)
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, errorResponse{Error: "timeout", Detail: err.Error()})
	case errors.Is(err, context.Canceled):
		// 客户端已经断开
		c.Status(499)
	default:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Detail: err.Error()})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request", Detail: err.Error()})
}

func contentType(p string) string {
	switch types.Format(strings.TrimPrefix(path.Ext(p), ".")) {
	case types.FormatCSV:
		return "text/csv; charset=utf-8"
	case types.FormatNetCDF:
		return "application/x-netcdf"
	case types.FormatGeoJSON:
		return "application/geo+json"
	default:
		return "application/octet-stream"
	}
}
