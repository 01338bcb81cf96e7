package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stocksense/stocksense/internal/models"
	"github.com/stocksense/stocksense/internal/services/alerts"
	"github.com/stocksense/stocksense/internal/services/factors"
)

// ============================================================================
// SPOILAGE
// ============================================================================

func (h *Handler) listRisks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.RiskFilter{Category: q.Get("category")}

	if raw := q.Get("tier"); raw != "" {
		tier, err := models.ParseTier("tier", raw)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		filter.Tier = &tier
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	filter.Limit = limit

	risks, err := h.svc.Risk.ListRisks(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, list(risks))
}

func (h *Handler) getRisk(w http.ResponseWriter, r *http.Request) {
	risk, err := h.svc.Risk.GetRisk(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, risk)
}

func (h *Handler) riskHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	points, err := h.svc.Risk.History(r.Context(), chi.URLParam(r, "productId"), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, list(points))
}

func (h *Handler) listPredictions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	preds, err := h.svc.Risk.ListPredictions(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, list(preds))
}

type tierSummaryResponse struct {
	Tiers map[models.RiskTier]int `json:"tiers"`
	Total int                     `json:"total"`
}

func (h *Handler) tierSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.Risk.TierCounts(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := tierSummaryResponse{Tiers: make(map[models.RiskTier]int, len(models.AllTiers))}
	for _, t := range models.AllTiers {
		resp.Tiers[t] = counts[t]
		resp.Total += counts[t]
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ============================================================================
// STORAGE CONDITIONS
// ============================================================================

type factorsRequest struct {
	Temperature       *float64 `json:"temperature"`
	Humidity          *float64 `json:"humidity"`
	Seasonality       *float64 `json:"seasonality"`
	StorageConditions *float64 `json:"storageConditions"`
	HistoricalWaste   *float64 `json:"historicalWaste"`
	Source            string   `json:"source"`
}

func (h *Handler) updateFactors(w http.ResponseWriter, r *http.Request) {
	var req factorsRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.svc.Factors.Update(r.Context(), chi.URLParam(r, "productId"), factors.UpdateInput{
		Temperature:       req.Temperature,
		Humidity:          req.Humidity,
		Seasonality:       req.Seasonality,
		StorageConditions: req.StorageConditions,
		HistoricalWaste:   req.HistoricalWaste,
		Source:            req.Source,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) currentFactors(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Factors.Current(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

func (h *Handler) factorHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	snaps, err := h.svc.Factors.History(r.Context(), chi.URLParam(r, "productId"), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, list(snaps))
}

// ============================================================================
// CRITICAL ALERTS
// ============================================================================

type createAlertRequest struct {
	Type       string   `json:"type"`
	Category   string   `json:"category"`
	Severity   string   `json:"severity"`
	Title      string   `json:"title"`
	Message    string   `json:"message"`
	ProductIDs []string `json:"productIds"`
}

type resolveAlertRequest struct {
	Note *string `json:"note"`
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status, err := models.ParseAlertStatus(q.Get("status"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	filter := models.AlertFilter{Status: status, Category: q.Get("category"), Limit: limit}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, h.logger, models.NewValidationError("since", "must be an RFC 3339 timestamp"))
			return
		}
		filter.Since = &since
	}

	found, err := h.svc.Alerts.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, list(found))
}

func (h *Handler) createAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	alert, err := h.svc.Alerts.Create(r.Context(), alerts.CreateInput{
		Type:       req.Type,
		Category:   req.Category,
		Severity:   req.Severity,
		Title:      req.Title,
		Message:    req.Message,
		ProductIDs: req.ProductIDs,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, alert)
}

func (h *Handler) getAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.svc.Alerts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, alert)
}

func (h *Handler) resolveAlert(w http.ResponseWriter, r *http.Request) {
	var req resolveAlertRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	alert, err := h.svc.Alerts.Resolve(r.Context(), chi.URLParam(r, "id"), alerts.ResolveInput{Note: req.Note})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, alert)
}

// ============================================================================
// BATCH JOBS
// ============================================================================

type createJobRequest struct {
	Scope string `json:"scope"`
}

type cancelJobRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	filter := models.JobFilter{Scope: q.Get("scope"), Limit: limit}
	if raw := q.Get("status"); raw != "" {
		status := models.JobStatus(raw)
		switch status {
		case models.JobStatusPending, models.JobStatusRunning, models.JobStatusSucceeded, models.JobStatusFailed:
			filter.Status = &status
		default:
			writeError(w, r, h.logger, models.NewValidationError("status", "%q is not a job status", raw))
			return
		}
	}

	jobs, err := h.svc.Batch.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, list(jobs))
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	job, err := h.svc.Batch.Create(r.Context(), req.Scope, models.JobTriggerAPI)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, job)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Batch.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) startJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Batch.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, job)
}

func (h *Handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	var req cancelJobRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	job, err := h.svc.Batch.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}
