package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/moto-rental/internal/domain/motorcycle"
)

// ListMotorcycles returns the whole fleet.
func (h *Handler) ListMotorcycles(w http.ResponseWriter, r *http.Request) {
	list, err := h.motorcycles.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range list {
			encodeMotorcycle(e, &list[i])
		}
		e.ArrEnd()
	})
}

// GetMotorcycle returns a single motorcycle by ID.
func (h *Handler) GetMotorcycle(w http.ResponseWriter, r *http.Request) {
	m, err := h.motorcycles.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeMotorcycle(e, m)
	})
}

func encodeMotorcycle(e *jx.Encoder, m *motorcycle.Motorcycle) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(m.ID)
	e.FieldStart("name")
	e.Str(m.Name)
	e.FieldStart("brand")
	e.Str(m.Brand)
	e.FieldStart("engineCc")
	e.Int(m.EngineCC)
	encodeMoney(e, "rentPerDay", m.RentPerDay)
	encodeMoney(e, "securityDeposit", m.SecurityDeposit)
	e.FieldStart("available")
	e.Bool(m.Available)
	e.ObjEnd()
}
