package metax

import (
	"encoding/hex"
	"strconv"
	"strings"
)

const invalidOpIDString = "00000000"

// EncodeHex renders b as uppercase hex, two digits per byte.
func EncodeHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// DecodeHex accepts upper or lower case digits.
func DecodeHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// FastOpID returns the op id digits of a serialized Metadata string without
// decoding it. The task id and op id lengths are recomputed from the flags
// byte alone. For any string accepted by Parse the result equals
// Parse(s).OpIDString(). A too short or non-hex prefix yields the invalid op id.
func FastOpID(s string) string {
	if len(s) < 2*MinPackedLen || len(s)%2 != 0 {
		return invalidOpIDString
	}
	flags, err := strconv.ParseUint(s[:2], 16, 8)
	if err != nil {
		return invalidOpIDString
	}
	taskLen := taskIDLengthOf(byte(flags))
	opLen := opIDLengthOf(byte(flags))

	start := 2 + 2*taskLen
	end := start + 2*opLen
	if end > len(s) {
		return invalidOpIDString
	}
	if byte(flags)&flagOptions != 0 && end+2 > len(s) {
		return invalidOpIDString
	}
	op := s[start:end]
	if !isHex(s[:end]) {
		return invalidOpIDString
	}
	return strings.ToUpper(op)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
