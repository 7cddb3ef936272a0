package http

import (
	"encoding/json"
	"fmt"

	"github.com/compose-network/verifier/x/aligned"
)

// verifyReq is the JSON schema for POST routeVerify. Byte fields accept an
// integer array, 0x-hex or base64 and are decoded one by one so errors name
// the offending field.
type verifyReq struct {
	Proof           json.RawMessage `json:"proof"`
	VerificationKey json.RawMessage `json:"verification_key"`
	PublicInput     json.RawMessage `json:"pub_input"`
	VMProgramCode   json.RawMessage `json:"vm_program_code"`
}

type payload struct {
	proof, verificationKey, publicInput, vmProgramCode aligned.Bytes
}

func (r verifyReq) decode() (payload, error) {
	var p payload
	fields := []struct {
		name aligned.Field
		raw  json.RawMessage
		dst  *aligned.Bytes
	}{
		{aligned.FieldProof, r.Proof, &p.proof},
		{aligned.FieldVerificationKey, r.VerificationKey, &p.verificationKey},
		{aligned.FieldPublicInput, r.PublicInput, &p.publicInput},
		{aligned.FieldVMProgramCode, r.VMProgramCode, &p.vmProgramCode},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := f.dst.UnmarshalJSON(f.raw); err != nil {
			return payload{}, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return p, nil
}

// verifyResp is the response of routeVerify. Error is null on success.
type verifyResp struct {
	Success         bool    `json:"success"`
	Error           *string `json:"error"`
	ErrorKind       string  `json:"error_kind,omitempty"`
	RequestID       string  `json:"request_id,omitempty"`
	SubmissionID    string  `json:"submission_id,omitempty"`
	BatchMerkleRoot string  `json:"batch_merkle_root,omitempty"`
	IndexInBatch    *uint64 `json:"index_in_batch,omitempty"`
	OnchainVerified bool    `json:"onchain_verified,omitempty"`
}

func failure(requestID, kind, msg string) verifyResp {
	return verifyResp{Success: false, Error: &msg, ErrorKind: kind, RequestID: requestID}
}
