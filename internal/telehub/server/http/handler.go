package http

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/telehub/internal/pkg/errno"
	"github.com/autopeer-io/telehub/internal/pkg/middleware"
	"github.com/autopeer-io/telehub/internal/telehub/command"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
	"github.com/autopeer-io/telehub/internal/telehub/vehicle"
	"github.com/autopeer-io/telehub/pkg/obd"
)

const maxBodyBytes = 1 << 20

type handler struct {
	commands *command.Service
	vehicles *vehicle.Service
}

func userID(r *http.Request) string {
	if c, ok := middleware.ClaimsFromContext(r.Context()); ok {
		return c.UserID
	}
	return ""
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errno.ErrValidation.WithMessage("Request body is not valid JSON.")
	}
	return nil
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errno.ErrValidation.WithMessage("limit must be a non-negative integer.")
	}
	return n, nil
}

type registerRequest struct {
	model.Vehicle
	// PIN is hashed before it is stored and never echoed back.
	PIN string `json:"pin,omitempty"`
}

func (h *handler) registerVehicle(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if req.PIN != "" {
		if req.RemoteControl == nil {
			middleware.WriteError(w, r, errno.ErrValidation.WithMessage("A PIN needs a remote control configuration."))
			return
		}
		hash, err := command.HashPIN(req.PIN)
		if err != nil {
			middleware.WriteError(w, r, err)
			return
		}
		req.RemoteControl.PINHash = hash
	}

	v, err := h.vehicles.Register(r.Context(), userID(r), &req.Vehicle)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, v)
}

func (h *handler) getVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := h.vehicles.Get(r.Context(), userID(r), mux.Vars(r)["vehicleID"])
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, v)
}

func (h *handler) getStatus(w http.ResponseWriter, r *http.Request) {
	s, err := h.vehicles.Status(r.Context(), userID(r), mux.Vars(r)["vehicleID"])
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, s)
}

func (h *handler) getGeoFence(w http.ResponseWriter, r *http.Request) {
	f, err := h.vehicles.GeoFence(r.Context(), userID(r), mux.Vars(r)["vehicleID"])
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, f)
}

func (h *handler) putGeoFence(w http.ResponseWriter, r *http.Request) {
	var f model.GeoFence
	if err := decodeBody(r, &f); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	f.VehicleID = mux.Vars(r)["vehicleID"]

	if err := h.vehicles.SetGeoFence(r.Context(), userID(r), &f); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, &f)
}

func (h *handler) listConnectivity(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	entries, err := h.vehicles.Connectivity(r.Context(), userID(r), mux.Vars(r)["vehicleID"], limit)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *handler) submitCommand(w http.ResponseWriter, r *http.Request) {
	var req command.SubmitRequest
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	req.VehicleID = mux.Vars(r)["vehicleID"]
	req.UserID = userID(r)

	resp, err := h.commands.Submit(r.Context(), req)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, resp)
}

func (h *handler) getCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := h.commands.Get(r.Context(), userID(r), mux.Vars(r)["commandID"])
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, cmd)
}

func (h *handler) listCommands(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	cmds, err := h.commands.History(r.Context(), userID(r), mux.Vars(r)["vehicleID"], limit)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"items": cmds})
}

func (h *handler) lookupDiagnostic(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(mux.Vars(r)["code"])
	if !obd.ValidDTC(code) {
		middleware.WriteError(w, r, errno.ErrValidation.WithMessage("%q is not a trouble code.", code))
		return
	}
	info, ok := obd.LookupDiagnostic(code)
	if !ok {
		middleware.WriteError(w, r, errno.ErrNotFound.WithMessage("No information for %s.", code))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, info)
}

func (h *handler) listParameters(w http.ResponseWriter, r *http.Request) {
	params := obd.Parameters()
	if cat := r.URL.Query().Get("category"); cat != "" {
		params = obd.ByCategory(obd.Category(cat))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"items": params})
}

type decodeRequest struct {
	PID  string `json:"pid"`
	Data string `json:"data"`
}

type decodeResponse struct {
	PID   string   `json:"pid"`
	Name  string   `json:"name"`
	Unit  string   `json:"unit"`
	Value *float64 `json:"value"`
}

// decode returns a null value for unknown PIDs and malformed bytes; only
// unreadable hex is a client error.
func (h *handler) decode(w http.ResponseWriter, r *http.Request) {
	var req decodeRequest
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	data, err := hex.DecodeString(strings.ReplaceAll(req.Data, " ", ""))
	if err != nil || req.PID == "" {
		middleware.WriteError(w, r, errno.ErrValidation.WithMessage("pid and hex data are required."))
		return
	}

	resp := decodeResponse{PID: req.PID}
	if p, ok := obd.Lookup(req.PID); ok {
		resp.PID, resp.Name, resp.Unit = p.PID, p.Name, p.Unit
	}
	if v, ok := obd.Decode(req.PID, data); ok {
		resp.Value = &v
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}
