package handlers

import (
	"context"
	"net/http"
	"strings"
)

type DeviceTokenSaver interface {
	Save(ctx context.Context, userID, token string) error
}

// DeviceHandler registers push notification tokens for the caller.
type DeviceHandler struct {
	Tokens DeviceTokenSaver
}

func NewDeviceHandler(tokens DeviceTokenSaver) *DeviceHandler {
	return &DeviceHandler{Tokens: tokens}
}

func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if caller.ID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := h.Tokens.Save(r.Context(), caller.ID, token); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "device registered"})
}
