package aligned

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProvingSystem identifies the proof system a submission targets.
type ProvingSystem uint8

const (
	GnarkPlonkBls12_381 ProvingSystem = iota
	GnarkPlonkBn254
	Groth16Bn254
	SP1
	Risc0
)

// Field names a VerificationData field a proving system may require.
type Field string

const (
	FieldProof           Field = "proof"
	FieldVerificationKey Field = "verification_key"
	FieldPublicInput     Field = "pub_input"
	FieldVMProgramCode   Field = "vm_program_code"
)

// Requirements is the capability entry of a proving system.
type Requirements struct {
	Required []Field
}

// Has reports whether f is required.
func (r Requirements) Has(f Field) bool {
	for _, req := range r.Required {
		if req == f {
			return true
		}
	}
	return false
}

type provingSystemInfo struct {
	name         string
	requirements Requirements
}

var provingSystems = map[ProvingSystem]provingSystemInfo{
	GnarkPlonkBls12_381: {
		name:         "GnarkPlonkBls12_381",
		requirements: Requirements{Required: []Field{FieldProof, FieldVerificationKey, FieldPublicInput}},
	},
	GnarkPlonkBn254: {
		name:         "GnarkPlonkBn254",
		requirements: Requirements{Required: []Field{FieldProof, FieldVerificationKey, FieldPublicInput}},
	},
	Groth16Bn254: {
		name:         "Groth16Bn254",
		requirements: Requirements{Required: []Field{FieldProof, FieldVerificationKey, FieldPublicInput}},
	},
	SP1: {
		name:         "SP1",
		requirements: Requirements{Required: []Field{FieldProof, FieldVMProgramCode}},
	},
	Risc0: {
		name:         "Risc0",
		requirements: Requirements{Required: []Field{FieldProof, FieldVMProgramCode}},
	},
}

// String returns the canonical name.
func (p ProvingSystem) String() string {
	if info, ok := provingSystems[p]; ok {
		return info.name
	}
	return fmt.Sprintf("ProvingSystem(%d)", uint8(p))
}

// Valid reports whether p is a known proving system.
func (p ProvingSystem) Valid() bool {
	_, ok := provingSystems[p]
	return ok
}

// Requirements returns the fields a submission for p must carry.
func (p ProvingSystem) Requirements() Requirements {
	return provingSystems[p].requirements
}

// ParseProvingSystem accepts canonical names case-insensitively and ignores
// '-' and '_' separators, so "Groth16-BN254" and "groth16_bn254" both work.
func ParseProvingSystem(s string) (ProvingSystem, error) {
	want := normalizeName(s)
	for ps, info := range provingSystems {
		if normalizeName(info.name) == want {
			return ps, nil
		}
	}
	return 0, fmt.Errorf("unknown proving system %q", s)
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
}

func (p ProvingSystem) MarshalJSON() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid proving system %d", uint8(p))
	}
	return json.Marshal(p.String())
}

func (p *ProvingSystem) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("proving system must be a string: %w", err)
	}
	parsed, err := ParseProvingSystem(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
