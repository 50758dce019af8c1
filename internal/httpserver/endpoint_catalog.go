package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sugarscan/sugartrack/internal/catalog"
	"github.com/sugarscan/sugartrack/internal/hooks"
	"github.com/sugarscan/sugartrack/internal/httpserver/protocol"
)

const (
	msgScanNotFound    = "scanId not found"
	msgGradeNotFound   = "gradeId not found"
	msgBarcodeNotFound = "barcode not found"
)

type catalogEndpoint struct {
	server *Server
}

func newCatalogEndpoint(server *Server) protocol.Endpoint {
	return &catalogEndpoint{server: server}
}

func (e *catalogEndpoint) Name() string { return "catalog" }

func (e *catalogEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/history", Handler: http.HandlerFunc(e.server.handleHistory)},
		{Method: http.MethodGet, Path: "/history/{scanId}", Handler: http.HandlerFunc(e.server.handleHistoryEntry)},
		{Method: http.MethodGet, Path: "/grade/{gradeId}", Handler: http.HandlerFunc(e.server.handleGrade)},
		{Method: http.MethodGet, Path: "/products/{barcode}", Handler: http.HandlerFunc(e.server.handleProduct)},
		{Method: http.MethodPost, Path: "/scanProduct", Handler: http.HandlerFunc(e.server.handleScanProduct)},
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	entries, err := s.catalog.ListHistory(r.Context(), id.UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(entries) == 0 {
		s.respondSuccess(w, "There is no current history", nil)
		return
	}
	s.respondSuccess(w, "read successful", entries)
}

func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	scanID, err := strconv.ParseInt(chi.URLParam(r, "scanId"), 10, 64)
	if err != nil || scanID <= 0 {
		s.respondFail(w, http.StatusForbidden, msgScanNotFound)
		return
	}
	entry, err := s.catalog.GetHistoryEntry(r.Context(), id.UserID, scanID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entry == nil {
		s.respondFail(w, http.StatusForbidden, msgScanNotFound)
		return
	}
	s.respondSuccess(w, "read successful", entry)
}

func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	grade, err := s.catalog.GetGrade(r.Context(), strings.TrimSpace(chi.URLParam(r, "gradeId")))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if grade == nil {
		s.respondFail(w, http.StatusForbidden, msgGradeNotFound)
		return
	}
	s.respondSuccess(w, "read successful", grade)
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.catalog.GetProduct(r.Context(), strings.TrimSpace(chi.URLParam(r, "barcode")))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if product == nil {
		s.respondFail(w, http.StatusForbidden, msgBarcodeNotFound)
		return
	}
	s.respondSuccess(w, "read successful", product)
}

type scanRequest struct {
	Barcode        string `json:"barcode"`
	ProductBarcode string `json:"product_barcode"`
}

// scanResult is returned by /scanProduct.
type scanResult struct {
	Scan    *catalog.HistoryEntry `json:"scan"`
	Product *catalog.Product      `json:"product"`
	Grade   *catalog.Grade        `json:"grade,omitempty"`
}

func (s *Server) handleScanProduct(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req scanRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	barcode := firstNonEmpty(req.Barcode, req.ProductBarcode)
	if barcode == "" {
		s.respondFail(w, http.StatusBadRequest, "barcode is required")
		return
	}

	entry, err := s.catalog.RecordScan(r.Context(), id.UserID, barcode, s.now().UTC())
	if errors.Is(err, catalog.ErrUnknownProduct) {
		s.respondFail(w, http.StatusForbidden, msgBarcodeNotFound)
		return
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	product, err := s.catalog.GetProduct(r.Context(), barcode)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	result := scanResult{Scan: entry, Product: product}
	if product != nil && product.GradeID != "" {
		if result.Grade, err = s.catalog.GetGrade(r.Context(), product.GradeID); err != nil {
			s.respondError(w, r, err)
			return
		}
	}

	s.metrics.RecordScan(entry.GradeID)
	s.emit(r.Context(), hooks.EventProductScanned, id.UserID, map[string]any{
		"scan_id":     entry.ScanID,
		"barcode":     entry.Barcode,
		"sugar_grams": entry.SugarGrams,
		"grade":       entry.GradeID,
	})
	s.respondSuccess(w, "insert successful", result)
}
