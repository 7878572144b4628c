// Package router parses viewport requests and maps service results to HTTP.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/composer"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/observability"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/filter"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/viewport"
)

const (
	RouteViewport   = "/api/viewport"
	RouteInvalidate = "/api/viewport/invalidate"
	RouteCacheInfo  = "/api/viewport/cache"
)

// ViewportService is what the handlers need from viewport.Service.
type ViewportService interface {
	GetFilteredData(ctx context.Context, region model.Region, criteria model.FilterCriteria) (*model.ViewData, error)
	Invalidate(ctx context.Context)
	CacheInfo() model.CacheInfo
}

type ViewportRequest struct {
	Region   model.Region
	Criteria model.FilterCriteria
}

func HandleViewport(logger *slog.Logger, svc ViewportService) http.HandlerFunc {
	return instrument(RouteViewport, func(w http.ResponseWriter, r *http.Request) {
		vr, warn, err := ParseViewportRequest(r)
		if warn != "" {
			logger.WarnContext(r.Context(), warn)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		view, err := svc.GetFilteredData(r.Context(), vr.Region, vr.Criteria)
		if err != nil {
			code := StatusFor(err)
			if code >= http.StatusInternalServerError {
				logger.ErrorContext(r.Context(), "viewport request failed", "err", err, "status", code)
			}
			http.Error(w, err.Error(), code)
			return
		}
		neg := composer.NegotiateFormat(composer.NegotiationInput{
			AcceptHeader:  r.Header.Get("Accept"),
			OutputFormat:  r.URL.Query().Get("format"),
			DefaultFormat: composer.FormatJSON,
		})
		body, err := composer.Compose(view, neg)
		if err != nil {
			logger.ErrorContext(r.Context(), "compose viewport response", "err", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", neg.ContentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})
}

func HandleInvalidate(logger *slog.Logger, svc ViewportService) http.HandlerFunc {
	return instrument(RouteInvalidate, func(w http.ResponseWriter, r *http.Request) {
		svc.Invalidate(r.Context())
		logger.InfoContext(r.Context(), "viewport cache invalidated via api")
		w.WriteHeader(http.StatusNoContent)
	})
}

func HandleCacheInfo(svc ViewportService) http.HandlerFunc {
	return instrument(RouteCacheInfo, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, svc.CacheInfo())
	})
}

// StatusFor maps service errors to response codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, viewport.ErrInvalidRegion):
		return http.StatusBadRequest
	case errors.Is(err, viewport.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, viewport.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ParseViewportRequest reads the viewport from north/south/east/west or from
// bbox=x1,y1,x2,y2,EPSG:4326, plus the filter parameters. When both forms
// are present the explicit edges win.
func ParseViewportRequest(r *http.Request) (ViewportRequest, string, error) {
	var warn string
	q := r.URL.Query()

	rawBBox := strings.TrimSpace(q.Get("bbox"))
	hasEdges := q.Has("north") || q.Has("south") || q.Has("east") || q.Has("west")

	if rawBBox != "" && hasEdges {
		warn = "both bbox and north/south/east/west supplied; preferring edges"
		rawBBox = ""
	}

	var region model.Region
	switch {
	case hasEdges:
		reg, err := parseEdges(q.Get("north"), q.Get("south"), q.Get("east"), q.Get("west"))
		if err != nil {
			return ViewportRequest{}, warn, fmt.Errorf("invalid viewport: %w", err)
		}
		region = reg
	case rawBBox != "":
		bb, err := parseBBOX(rawBBox)
		if err != nil {
			return ViewportRequest{}, warn, fmt.Errorf("invalid bbox: %w", err)
		}
		region = bb.Region()
	default:
		return ViewportRequest{}, "", errors.New("missing viewport: pass north,south,east,west or bbox")
	}

	criteria, err := filter.ParseQuery(q)
	if err != nil {
		return ViewportRequest{}, warn, fmt.Errorf("invalid filter: %w", err)
	}
	return ViewportRequest{Region: region, Criteria: criteria}, warn, nil
}

func parseEdges(north, south, east, west string) (model.Region, error) {
	n, err := parseFloat(north)
	if err != nil {
		return model.Region{}, fmt.Errorf("north: %w", err)
	}
	s, err := parseFloat(south)
	if err != nil {
		return model.Region{}, fmt.Errorf("south: %w", err)
	}
	e, err := parseFloat(east)
	if err != nil {
		return model.Region{}, fmt.Errorf("east: %w", err)
	}
	w, err := parseFloat(west)
	if err != nil {
		return model.Region{}, fmt.Errorf("west: %w", err)
	}
	reg := model.Region{North: n, South: s, East: e, West: w}
	if err := reg.Validate(); err != nil {
		return model.Region{}, err
	}
	return reg, nil
}

func parseBBOX(bboxParam string) (model.BBox, error) {
	parts := strings.Split(bboxParam, ",")
	if len(parts) != 5 {
		return model.BBox{}, errors.New("expected 5 comma-separated values: x1,y1,x2,y2,EPSG:4326")
	}
	xMin, err := parseFloat(parts[0])
	if err != nil {
		return model.BBox{}, fmt.Errorf("x1: %w", err)
	}
	yMin, err := parseFloat(parts[1])
	if err != nil {
		return model.BBox{}, fmt.Errorf("y1: %w", err)
	}
	xMax, err := parseFloat(parts[2])
	if err != nil {
		return model.BBox{}, fmt.Errorf("x2: %w", err)
	}
	yMax, err := parseFloat(parts[3])
	if err != nil {
		return model.BBox{}, fmt.Errorf("y2: %w", err)
	}

	srid := strings.ToUpper(strings.TrimSpace(parts[4]))
	if srid != "EPSG:4326" {
		return model.BBox{}, fmt.Errorf("only EPSG:4326 is supported (got %q)", srid)
	}

	bb := model.BBox{X1: xMin, Y1: yMin, X2: xMax, Y2: yMax, SRID: srid}
	if err := bb.Region().Validate(); err != nil {
		return model.BBox{}, err
	}
	return bb, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}
