package loyaltytwin

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// adminRoutes mounts the control plane used by tests and local demos.
func (t *Twin) adminRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/reset", t.handleReset)
		r.Get("/state", t.handleState)
		r.Get("/codes/{phone}", t.handleCode)
		r.Post("/customers/{phone}/orders", t.handleAddOrder)
		r.Post("/customers/{phone}/redeem", t.handleRedeem)
		r.Post("/customers/{phone}/revoke", t.handleRevoke)
		r.Post("/fault", t.handleInjectFault)
		r.Delete("/fault", t.handleRemoveFault)
		r.Get("/faults", t.handleListFaults)
		r.Get("/requests", t.handleRequests)
		r.Post("/time/advance", t.handleTimeAdvance)
	})
}

type adminStatus struct {
	Status string `json:"status"`
	Detail any    `json:"detail,omitempty"`
}

func (t *Twin) handleReset(w http.ResponseWriter, r *http.Request) {
	t.Reset()
	writeJSON(w, http.StatusOK, adminStatus{Status: "reset"})
}

func (t *Twin) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, t.store.Snapshot())
}

func (t *Twin) handleCode(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	code, ok := t.store.Code(phone)
	if !ok {
		writeErrors(w, http.StatusNotFound, "no pending code for "+phone)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phone": phone, "code": code})
}

func (t *Twin) customerFor(w http.ResponseWriter, r *http.Request) (Customer, bool) {
	phone := chi.URLParam(r, "phone")
	c, ok := t.store.CustomerByPhone(phone)
	if !ok {
		writeErrors(w, http.StatusNotFound, "no customer with phone "+phone)
	}
	return c, ok
}

func (t *Twin) handleAddOrder(w http.ResponseWriter, r *http.Request) {
	c, ok := t.customerFor(w, r)
	if !ok {
		return
	}

	var req struct {
		Coffees int `json:"coffees"`
	}
	if err := decode(r, &req); err != nil || req.Coffees <= 0 {
		writeErrors(w, http.StatusBadRequest, "coffees must be a positive integer")
		return
	}

	order, err := t.store.AddOrder(c.ID, req.Coffees, t.clock.Now())
	if err != nil {
		writeErrors(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (t *Twin) handleRedeem(w http.ResponseWriter, r *http.Request) {
	c, ok := t.customerFor(w, r)
	if !ok {
		return
	}
	switch err := t.store.Redeem(c.ID); {
	case errors.Is(err, ErrNotEnoughCoffees):
		writeErrors(w, http.StatusConflict, err.Error())
	case err != nil:
		writeErrors(w, http.StatusNotFound, err.Error())
	default:
		writeJSON(w, http.StatusOK, adminStatus{Status: "redeemed"})
	}
}

func (t *Twin) handleRevoke(w http.ResponseWriter, r *http.Request) {
	c, ok := t.customerFor(w, r)
	if !ok {
		return
	}
	t.store.RevokeAccess(c.ID)
	writeJSON(w, http.StatusOK, adminStatus{Status: "revoked"})
}

type faultRequest struct {
	Path string `json:"path"`
	Fault
}

func (t *Twin) handleInjectFault(w http.ResponseWriter, r *http.Request) {
	var req faultRequest
	if err := decode(r, &req); err != nil || req.Path == "" {
		writeErrors(w, http.StatusBadRequest, "fault needs a path")
		return
	}
	t.faults.Set(req.Path, req.Fault)
	writeJSON(w, http.StatusOK, adminStatus{Status: "injected", Detail: req})
}

func (t *Twin) handleRemoveFault(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if !t.faults.Remove(path) {
		writeErrors(w, http.StatusNotFound, "no fault registered for "+path)
		return
	}
	writeJSON(w, http.StatusOK, adminStatus{Status: "removed", Detail: path})
}

func (t *Twin) handleListFaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, t.faults.All())
}

func (t *Twin) handleRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, t.requests.Entries())
}

func (t *Twin) handleTimeAdvance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Duration string `json:"duration"`
	}
	if err := decode(r, &req); err != nil {
		writeErrors(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, "invalid duration: "+err.Error())
		return
	}

	t.clock.Advance(d)
	writeJSON(w, http.StatusOK, map[string]string{
		"offset":    t.clock.Offset().String(),
		"simulated": t.clock.Now().Format(time.RFC3339),
	})
}
