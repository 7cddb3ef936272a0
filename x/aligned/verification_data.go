package aligned

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// VerificationData is the payload submitted to the batcher.
type VerificationData struct {
	ProvingSystem         ProvingSystem  `json:"proving_system"`
	Proof                 Bytes          `json:"proof"`
	PublicInput           Bytes          `json:"pub_input,omitempty"`
	VerificationKey       Bytes          `json:"verification_key,omitempty"`
	VMProgramCode         Bytes          `json:"vm_program_code,omitempty"`
	ProofGeneratorAddress common.Address `json:"proof_generator_addr"`
}

// Validate checks the payload against the capability entry of its proving
// system. It never contacts a remote service.
func (d *VerificationData) Validate() error {
	if !d.ProvingSystem.Valid() {
		return Errorf(KindValidation, "unsupported proving system %d", uint8(d.ProvingSystem))
	}
	if len(d.Proof) == 0 {
		return NewError(KindValidation, "proof is required")
	}

	reqs := d.ProvingSystem.Requirements()
	for _, f := range []Field{FieldVerificationKey, FieldPublicInput, FieldVMProgramCode} {
		if reqs.Has(f) && len(d.field(f)) == 0 {
			return Errorf(KindValidation, "%s is required for %s", f, d.ProvingSystem)
		}
	}
	return nil
}

func (d *VerificationData) field(f Field) []byte {
	switch f {
	case FieldVerificationKey:
		return d.VerificationKey
	case FieldPublicInput:
		return d.PublicInput
	case FieldVMProgramCode:
		return d.VMProgramCode
	default:
		return nil
	}
}

// Commitment is the content-derived digest set identifying a submission
// inside a batch.
type Commitment struct {
	ProofCommitment                common.Hash    `json:"proof_commitment"`
	PubInputCommitment             common.Hash    `json:"pub_input_commitment"`
	ProvingSystemAuxDataCommitment common.Hash    `json:"proving_system_aux_data_commitment"`
	ProofGeneratorAddress          common.Address `json:"proof_generator_addr"`
}

// Commitment derives the commitment of d.
func (d *VerificationData) Commitment() Commitment {
	var c Commitment
	c.ProofCommitment = crypto.Keccak256Hash(d.Proof)
	if len(d.PublicInput) > 0 {
		c.PubInputCommitment = crypto.Keccak256Hash(d.PublicInput)
	}

	aux := d.VerificationKey
	if d.ProvingSystem == SP1 || d.ProvingSystem == Risc0 {
		aux = d.VMProgramCode
	}
	c.ProvingSystemAuxDataCommitment = crypto.Keccak256Hash(aux, []byte{byte(d.ProvingSystem)})
	c.ProofGeneratorAddress = d.ProofGeneratorAddress
	return c
}

// Leaf is the merkle leaf of the commitment in a batch tree.
func (c Commitment) Leaf() common.Hash {
	return crypto.Keccak256Hash(
		c.ProofCommitment.Bytes(),
		c.PubInputCommitment.Bytes(),
		c.ProvingSystemAuxDataCommitment.Bytes(),
		c.ProofGeneratorAddress.Bytes(),
	)
}
