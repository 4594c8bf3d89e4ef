package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/docc-labs/docc-api/internal/apperr"
)

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.New(apperr.Validation, "invalid %s %q", name, raw)
	}
	return id, nil
}
