package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/kbforge/kbforge/pkg/observability"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 500
)

// Searcher is the read side of the audit store used by the HTTP handlers
type Searcher interface {
	Search(ctx context.Context, filter SearchFilter) ([]*Event, error)
}

// Handlers provides HTTP handlers for browsing the audit trail
type Handlers struct {
	searcher Searcher
	logger   *observability.Logger
}

// NewHandlers creates audit HTTP handlers
func NewHandlers(searcher Searcher, logger *observability.Logger) *Handlers {
	return &Handlers{
		searcher: searcher,
		logger:   logger.WithComponent("audit-handlers"),
	}
}

// RegisterRoutes registers audit routes on the router. The caller is expected
// to mount these behind the admin middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/events", h.ListEvents).Methods("GET")
}

// ListEvents handles GET /audit/events
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSearchFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := h.searcher.Search(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("failed to search audit events")
		http.Error(w, "failed to search audit events", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

type badFilterError string

func (e badFilterError) Error() string { return string(e) }

func parseSearchFilter(r *http.Request) (SearchFilter, error) {
	q := r.URL.Query()
	filter := SearchFilter{
		Limit: defaultSearchLimit,
	}

	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, badFilterError("invalid start time, expected RFC3339")
		}
		filter.StartTime = &t
	}

	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, badFilterError("invalid end time, expected RFC3339")
		}
		filter.EndTime = &t
	}

	if v := q.Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, badFilterError("invalid user_id")
		}
		filter.UserID = &id
	}

	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, Action(a))
	}

	if v := q.Get("status"); v != "" {
		status := Status(v)
		switch status {
		case StatusSuccess, StatusFailure, StatusDenied:
			filter.Status = &status
		default:
			return filter, badFilterError("invalid status")
		}
	}

	filter.ResourceType = ResourceType(q.Get("resource_type"))
	filter.ResourceID = q.Get("resource_id")

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return filter, badFilterError("invalid limit")
		}
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}
		filter.Limit = limit
	}

	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, badFilterError("invalid offset")
		}
		filter.Offset = offset
	}

	return filter, nil
}
