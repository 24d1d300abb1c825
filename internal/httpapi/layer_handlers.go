package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"atlaskg.org/internal/account"
	"atlaskg.org/internal/audit"
	"atlaskg.org/internal/layer"
	"atlaskg.org/internal/session"
)

func (a *API) handleLayersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleLayerList(w, r)
	case http.MethodPost:
		a.requireRoles(a.handleLayerCreate, account.RoleEditor)(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleLayerList(w http.ResponseWriter, r *http.Request) {
	limit, offset := 50, 0
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = n
	}
	layers, err := a.layers.List(r.Context(), limit, offset)
	if err != nil {
		writeLayerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"layers": layers,
		"count":  len(layers),
	})
}

type layerCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Format      string `json:"format"`
	SourceIRI   string `json:"source_iri"`
}

func (a *API) handleLayerCreate(w http.ResponseWriter, r *http.Request) {
	principal, _ := session.PrincipalFromContext(r.Context())

	var in layerCreateRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	l, err := a.layers.Create(r.Context(), in.Name, in.Description, in.Format, in.SourceIRI, principal.Username)
	if err != nil {
		writeLayerError(w, r, err)
		return
	}
	_ = audit.LogEvent(a.auditContext(r), "layer_created", map[string]any{
		"layer_id": l.ID,
		"name":     l.Name,
	})
	writeJSON(w, http.StatusCreated, l)
}

type layerUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Format      *string `json:"format"`
	SourceIRI   *string `json:"source_iri"`
}

// handleLayerResource serves /v1/layers/{id}.
func (a *API) handleLayerResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/layers/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.handleLayerGet(w, r, id)
	case http.MethodPut, http.MethodPatch:
		a.requireRoles(func(w http.ResponseWriter, r *http.Request) {
			a.handleLayerUpdate(w, r, id)
		}, account.RoleEditor)(w, r)
	case http.MethodDelete:
		a.requireRoles(func(w http.ResponseWriter, r *http.Request) {
			a.handleLayerDelete(w, r, id)
		}, account.RoleEditor)(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleLayerGet(w http.ResponseWriter, r *http.Request, id string) {
	l, err := a.layers.FindByID(r.Context(), id)
	if err != nil {
		writeLayerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (a *API) handleLayerUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var in layerUpdateRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	l, err := a.layers.Update(r.Context(), id, layer.Update{
		Name:        in.Name,
		Description: in.Description,
		Format:      in.Format,
		SourceIRI:   in.SourceIRI,
	})
	if err != nil {
		writeLayerError(w, r, err)
		return
	}
	_ = audit.LogEvent(a.auditContext(r), "layer_updated", map[string]any{
		"layer_id": l.ID,
	})
	writeJSON(w, http.StatusOK, l)
}

func (a *API) handleLayerDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.layers.Delete(r.Context(), id); err != nil {
		writeLayerError(w, r, err)
		return
	}
	_ = audit.LogEvent(a.auditContext(r), "layer_deleted", map[string]any{
		"layer_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func writeLayerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, layer.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, layer.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "layer not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
