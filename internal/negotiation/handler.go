package negotiation

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"dealroom/internal/common"
	"dealroom/internal/message"

	"github.com/gorilla/mux"
)

// Handler exposes the engine commands over REST. The same commands are
// mirrored as socket events by the realtime transport; both paths call
// the same services.
type Handler struct {
	negotiations Service
	messages     message.Service
	log          *slog.Logger
}

func NewHandler(negotiations Service, messages message.Service, log *slog.Logger) *Handler {
	return &Handler{negotiations: negotiations, messages: messages, log: log}
}

func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/negotiations", h.create).Methods("POST")
	router.HandleFunc("/negotiations", h.list).Methods("GET")
	router.HandleFunc("/negotiations/{id}", h.detail).Methods("GET")
	router.HandleFunc("/negotiations/{id}", h.delete).Methods("DELETE")
	router.HandleFunc("/negotiations/{id}/accept", h.accept).Methods("POST")
	router.HandleFunc("/negotiations/{id}/reject", h.reject).Methods("POST")
	router.HandleFunc("/negotiations/{id}/cancel", h.cancel).Methods("POST")
	router.HandleFunc("/negotiations/{id}/messages", h.sendMessage).Methods("POST")
	router.HandleFunc("/messages/{id}/read", h.markRead).Methods("POST")
	router.HandleFunc("/messages/{id}/delivered", h.markDelivered).Methods("POST")
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal, ok := common.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "user not authenticated", http.StatusUnauthorized)
		return
	}

	var dto CreateDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	nego, err := h.negotiations.Create(r.Context(), dto, principal)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, nego)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{
		ProfileID: q.Get("profileId"),
		Type:      common.NegotiationType(q.Get("type")),
		Status:    common.NegotiationStatus(q.Get("status")),
		Page:      intQuery(q.Get("page")),
		Limit:     intQuery(q.Get("limit")),
	}

	result, err := h.negotiations.List(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	principal, ok := common.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "user not authenticated", http.StatusUnauthorized)
		return
	}

	detail, err := h.negotiations.GetDetail(r.Context(), mux.Vars(r)["id"], principal)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	principal, ok := common.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "user not authenticated", http.StatusUnauthorized)
		return
	}

	result, err := h.negotiations.Accept(r.Context(), mux.Vars(r)["id"], principal)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	principal, ok := common.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "user not authenticated", http.StatusUnauthorized)
		return
	}

	var body struct {
		OfferPrice float64 `json:"offerPrice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.negotiations.Reject(r.Context(), mux.Vars(r)["id"], body.OfferPrice, principal)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	principal, ok := common.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "user not authenticated", http.StatusUnauthorized)
		return
	}

	result, err := h.negotiations.Cancel(r.Context(), mux.Vars(r)["id"], principal)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := common.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "user not authenticated", http.StatusUnauthorized)
		return
	}

	if err := h.negotiations.Delete(r.Context(), mux.Vars(r)["id"], principal); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	principal, ok := common.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "user not authenticated", http.StatusUnauthorized)
		return
	}

	var dto message.SendDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	dto.NegotiationID = mux.Vars(r)["id"]

	msg, err := h.messages.Send(r.Context(), dto, principal)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	principal, ok := common.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "user not authenticated", http.StatusUnauthorized)
		return
	}

	msg, err := h.messages.MarkRead(r.Context(), mux.Vars(r)["id"], principal)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) markDelivered(w http.ResponseWriter, r *http.Request) {
	msg, err := h.messages.MarkDelivered(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("failed to encode response", "error", err)
	}
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := common.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case common.KindNotFound:
		status = http.StatusNotFound
	case common.KindAuthorization:
		status = http.StatusForbidden
	case common.KindConflict:
		status = http.StatusConflict
	case common.KindInvalidOperation:
		status = http.StatusUnprocessableEntity
	case common.KindValidation:
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.log.Error("internal error", "error", err)
		h.writeJSON(w, status, errorBody{Kind: "internal", Message: "internal error"})
		return
	}

	var e *common.Error
	msg := err.Error()
	if errors.As(err, &e) {
		msg = e.Message
	}
	h.writeJSON(w, status, errorBody{Kind: string(kind), Message: msg})
}

func intQuery(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
