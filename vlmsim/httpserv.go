package vlmsim

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/c360/robobridge/wire"
)

// maxInferBody bounds /infer request bodies. Encoded frames stay well
// under 1 MB, so 8 MB leaves room for base64 overhead and headroom.
const maxInferBody = 8 << 20

// healthBody is the /health reply consumed by transport probes.
type healthBody struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelPath   string `json:"model_path"`
}

// NewHandler builds the HTTP surface of the simulator: POST /infer takes
// a request envelope and returns a response envelope, GET /health answers
// readiness probes.
func NewHandler(e *Engine) http.Handler {
	h := &httpHandler{engine: e}
	mux := http.NewServeMux()
	mux.HandleFunc("/infer", h.infer)
	mux.HandleFunc("/health", h.health)
	return mux
}

type httpHandler struct {
	engine *Engine
}

func (h *httpHandler) infer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInferBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "read request body failed")
		return
	}

	req, err := wire.DecodeRequest(body)
	if err != nil {
		h.engine.logger.Warn("rejecting undecodable request envelope", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid request envelope")
		return
	}

	resp := h.engine.Infer(r.Context(), req)
	payload, err := wire.EncodeResponse(resp)
	if err != nil {
		h.engine.logger.Error("encode response failed", "id", req.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "encode response failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

func (h *httpHandler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthBody{
		Status:      "healthy",
		ModelLoaded: true,
		ModelPath:   ModelPath,
	})
}

// writeError answers with an error envelope so callers get the failure
// through the same decode path as a handled inference error.
func (h *httpHandler) writeError(w http.ResponseWriter, code int, msg string) {
	payload, err := wire.EncodeResponse(wire.ErrorResponse("", msg))
	if err != nil {
		http.Error(w, msg, code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(payload)
}
