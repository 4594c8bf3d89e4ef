package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/introspect"
	"github.com/docc-labs/docc-api/internal/models"
	"github.com/docc-labs/docc-api/internal/repository"
)

type MetadataHandler struct {
	store     repository.Store
	inspector *introspect.Inspector
}

func NewMetadataHandler(store repository.Store, inspector *introspect.Inspector) *MetadataHandler {
	return &MetadataHandler{store: store, inspector: inspector}
}

func (h *MetadataHandler) connection(r *http.Request) (models.Connection, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return models.Connection{}, err
	}
	return h.store.Connections().Get(r.Context(), id)
}

func (h *MetadataHandler) Tables(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connection(r)
	if err != nil {
		writeError(w, err)
		return
	}
	tables, err := h.inspector.Tables(r.Context(), conn)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tables": tables})
}

func (h *MetadataHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connection(r)
	if err != nil {
		writeError(w, err)
		return
	}
	meta, err := h.inspector.Metadata(r.Context(), conn)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (h *MetadataHandler) UniqueIdentifiers(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connection(r)
	if err != nil {
		writeError(w, err)
		return
	}
	table := mux.Vars(r)["table"]
	ids, err := h.inspector.UniqueIdentifiers(r.Context(), conn, table)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

type dataRequest struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Data pages through raw rows of one table. It is a POST because the page
// selection rides in the body, matching the consumer UI's fetch shape.
func (h *MetadataHandler) Data(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connection(r)
	if err != nil {
		writeError(w, err)
		return
	}
	table := mux.Vars(r)["table"]

	var req dataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid request payload"))
		return
	}

	page, err := h.inspector.ReadPage(r.Context(), conn, table, req.Page, req.PerPage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
