package httpapi

import (
	"net/http"
	"strings"

	"medidesk.org/internal/auth"
	"medidesk.org/internal/clinic"
)

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

type categoryUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Priority    *int    `json:"priority"`
	Active      *bool   `json:"isActive"`
}

type procedureTypeRequest struct {
	CategoryID       string                   `json:"categoryId"`
	Name             string                   `json:"name"`
	Description      string                   `json:"description"`
	DurationMinutes  int                      `json:"duration"`
	BasePrice        int64                    `json:"basePrice"`
	Currency         string                   `json:"currency"`
	CheckupIntervals []clinic.CheckupInterval `json:"checkupIntervals"`
}

type procedureTypeUpdateRequest struct {
	Name             *string                  `json:"name"`
	Description      *string                  `json:"description"`
	DurationMinutes  *int                     `json:"duration"`
	BasePrice        *int64                   `json:"basePrice"`
	CheckupIntervals []clinic.CheckupInterval `json:"checkupIntervals"`
	Active           *bool                    `json:"isActive"`
}

func (a *API) handleProcedures(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/procedures/")
	head, id, _ := strings.Cut(rest, "/")
	switch head {
	case "categories":
		if id == "" {
			switch r.Method {
			case http.MethodGet:
				a.listCategories(w, r)
			case http.MethodPost:
				a.createCategory(w, r)
			default:
				methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
			}
			return
		}
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.updateCategory(w, r, id)
	case "types":
		if id == "" {
			switch r.Method {
			case http.MethodGet:
				a.listTypes(w, r)
			case http.MethodPost:
				a.createType(w, r)
			default:
				methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
			}
			return
		}
		switch r.Method {
		case http.MethodGet:
			a.getType(w, r, id)
		case http.MethodPut:
			a.updateType(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
		}
	default:
		writeError(w, r, http.StatusNotFound, codeNotFound, "no such endpoint")
	}
}

// Catalog reads are open to any authenticated caller; inactive entries show
// up only when asked for, which is a staff concern but harmless to expose.
func (a *API) listCategories(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAction(w, r, auth.ActionStaffView, ""); !ok {
		return
	}
	activeOnly := r.URL.Query().Get("includeInactive") != "true"
	items, err := a.catalog.Categories(r.Context(), activeOnly)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createCategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAction(w, r, auth.ActionCatalogManage, ""); !ok {
		return
	}
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidFormat, err.Error())
		return
	}
	cat, err := a.catalog.CreateCategory(r.Context(), &clinic.ProcedureCategory{
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cat)
}

func (a *API) updateCategory(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireAction(w, r, auth.ActionCatalogManage, ""); !ok {
		return
	}
	var req categoryUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidFormat, err.Error())
		return
	}
	cat, err := a.catalog.UpdateCategory(r.Context(), id, req.Name, req.Description, req.Priority, req.Active)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

func (a *API) listTypes(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAction(w, r, auth.ActionStaffView, ""); !ok {
		return
	}
	q := r.URL.Query()
	activeOnly := q.Get("includeInactive") != "true"
	items, err := a.catalog.Types(r.Context(), strings.TrimSpace(q.Get("categoryId")), activeOnly)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createType(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAction(w, r, auth.ActionCatalogManage, ""); !ok {
		return
	}
	var req procedureTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidFormat, err.Error())
		return
	}
	pt, err := a.catalog.CreateType(r.Context(), &clinic.ProcedureType{
		CategoryID:       req.CategoryID,
		Name:             req.Name,
		Description:      req.Description,
		DurationMinutes:  req.DurationMinutes,
		BasePrice:        req.BasePrice,
		Currency:         req.Currency,
		CheckupIntervals: req.CheckupIntervals,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pt)
}

func (a *API) getType(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireAction(w, r, auth.ActionStaffView, ""); !ok {
		return
	}
	pt, err := a.catalog.FindType(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pt)
}

func (a *API) updateType(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireAction(w, r, auth.ActionCatalogManage, ""); !ok {
		return
	}
	var req procedureTypeUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidFormat, err.Error())
		return
	}
	pt, err := a.catalog.UpdateType(r.Context(), id, clinic.TypeUpdate{
		Name:             req.Name,
		Description:      req.Description,
		DurationMinutes:  req.DurationMinutes,
		BasePrice:        req.BasePrice,
		CheckupIntervals: req.CheckupIntervals,
		Active:           req.Active,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pt)
}
