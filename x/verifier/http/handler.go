package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/verifier/server/api"
	"github.com/compose-network/verifier/server/api/middleware"
	"github.com/compose-network/verifier/x/aligned"
	"github.com/compose-network/verifier/x/verifier"
)

const kindInvalidJSON = "invalid_json"

type Handler struct {
	verifier verifier.Verifier
	log      zerolog.Logger
}

func NewHandler(v verifier.Verifier, log zerolog.Logger) *Handler {
	return &Handler{
		verifier: v,
		log:      log.With().Str("component", "verify-http").Logger(),
	}
}

// handleVerify decodes a proof, runs it through the verifier and reports
// the outcome. Infrastructure failures answer 500, bad input 400, and every
// other outcome 200 with success set accordingly.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	requestID := middleware.RequestIDFrom(r.Context())

	var req verifyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		apicommon.WriteJSON(w, status, failure(requestID, kindInvalidJSON, "failed to decode request: "+err.Error()))
		return
	}
	p, err := req.decode()
	if err != nil {
		apicommon.WriteJSON(w, http.StatusBadRequest, failure(requestID, kindInvalidJSON, "failed to decode request: "+err.Error()))
		return
	}

	res, err := h.verifier.Verify(r.Context(), verifier.Request{
		RequestID:       requestID,
		Proof:           p.proof,
		VerificationKey: p.verificationKey,
		PublicInput:     p.publicInput,
		VMProgramCode:   p.vmProgramCode,
	})
	if err != nil {
		kind := aligned.KindOf(err)
		apicommon.WriteJSON(w, statusFor(kind), failure(requestID, kind.String(), err.Error()))
		return
	}

	index := res.IndexInBatch
	apicommon.WriteJSON(w, http.StatusOK, verifyResp{
		Success:         true,
		RequestID:       requestID,
		SubmissionID:    res.SubmissionID,
		BatchMerkleRoot: res.BatchMerkleRoot.Hex(),
		IndexInBatch:    &index,
		OnchainVerified: res.OnchainVerified,
	})
}

func (h *Handler) handleIdentity(w http.ResponseWriter, _ *http.Request) {
	apicommon.WriteJSON(w, http.StatusOK, h.verifier.Info())
}

// statusFor maps an error kind to the response status.
func statusFor(kind aligned.ErrorKind) int {
	switch {
	case kind == aligned.KindValidation:
		return http.StatusBadRequest
	case kind.IsInfrastructure():
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}
