package aligned

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Bytes is an opaque payload such as a proof, verification key or public
// input. In JSON it is written as 0x-hex and read from a byte array, a
// 0x-hex string or a base64 string.
type Bytes []byte

// ParseBytes decodes the string forms of a payload. Strings starting with
// 0x are hex, anything else is standard base64.
func ParseBytes(s string) (Bytes, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		out, err := hexutil.Decode("0x" + s[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return out, nil
	}
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	return out, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*b = nil
		return nil
	}

	var (
		out Bytes
		err error
	)
	switch data[0] {
	case '"':
		var s string
		if err = json.Unmarshal(data, &s); err == nil {
			out, err = ParseBytes(s)
		}
	case '[':
		out, err = bytesFromArray(data)
	default:
		err = fmt.Errorf("expected a byte array or a hex/base64 string, got %.16s", data)
	}
	if err != nil {
		return err
	}
	*b = out
	return nil
}

// bytesFromArray decodes a JSON array whose elements are integers in [0, 255].
func bytesFromArray(data []byte) (Bytes, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, err
	}
	out := make(Bytes, len(elems))
	for i, raw := range elems {
		v, err := strconv.ParseUint(string(bytes.TrimSpace(raw)), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("element %d: %s is not a byte value", i, raw)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// MarshalJSON emits a 0x-prefixed hex string, or null when empty.
func (b Bytes) MarshalJSON() ([]byte, error) {
	if len(b) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(hexutil.Encode(b))
}
