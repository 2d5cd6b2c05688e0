package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/resource"
	"github.com/coursekit/coursekit-backend/internal/auth"
	"github.com/coursekit/coursekit-backend/internal/domain"
)

// resourceLister defines the minimal interface needed by ResourceHandler.
type resourceLister interface {
	List(ctx context.Context, f resource.Filter) ([]*domain.ContentResource, int, error)
}

// ResourceHandler serves the content resource admin endpoints.
type ResourceHandler struct {
	lister resourceLister
	log    *slog.Logger
}

// NewResourceHandler creates a ResourceHandler.
func NewResourceHandler(lister resourceLister, logger *slog.Logger) *ResourceHandler {
	return &ResourceHandler{
		lister: lister,
		log:    logger.With("handler", "resources"),
	}
}

type resourceItem struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	State       string         `json:"state"`
	Fields      map[string]any `json:"fields"`
	CreatedByID *string        `json:"createdById,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type resourceListResponse struct {
	Items []resourceItem `json:"items"`
	Total int            `json:"total"`
}

// List returns resources matching the query filters plus the total count.
// GET /admin/resources?type=video&state=review-pending&limit=50&offset=0
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	q := r.URL.Query()
	var f resource.Filter

	for _, v := range q["type"] {
		rt := domain.ResourceType(v)
		if !rt.IsValid() {
			writeError(w, http.StatusBadRequest, "unknown resource type: "+v)
			return
		}
		f.Types = append(f.Types, rt)
	}
	for _, v := range q["state"] {
		st := domain.ProcessingState(v)
		if !st.IsValid() {
			writeError(w, http.StatusBadRequest, "unknown state: "+v)
			return
		}
		f.States = append(f.States, st)
	}
	if v := q.Get("created_by"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid created_by id")
			return
		}
		f.CreatedByID = &id
	}
	if v := q.Get("search"); v != "" {
		f.Search = &v
	}
	f.SortBy = q.Get("sort_by")
	f.SortOrder = q.Get("sort_order")
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Offset = n
		}
	}

	resources, total, err := h.lister.List(r.Context(), f)
	if err != nil {
		h.log.ErrorContext(r.Context(), "list resources", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	items := make([]resourceItem, len(resources))
	for i, res := range resources {
		items[i] = toResourceItem(res)
	}
	writeJSON(w, http.StatusOK, resourceListResponse{Items: items, Total: total})
}

func (h *ResourceHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	p, ok := auth.PrincipalFromCtx(r.Context())
	if !ok || p.Role != "admin" {
		writeError(w, http.StatusForbidden, "admin access required")
		return false
	}
	return true
}

func toResourceItem(res *domain.ContentResource) resourceItem {
	item := resourceItem{
		ID:        res.ID.String(),
		Type:      string(res.Type),
		State:     string(res.State),
		Fields:    res.Fields,
		CreatedAt: res.CreatedAt,
		UpdatedAt: res.UpdatedAt,
	}
	if res.CreatedByID != nil {
		id := res.CreatedByID.String()
		item.CreatedByID = &id
	}
	return item
}
