// Package fingerprint computes the content commitment that is written to the
// ledger for every entity.
//
// A fingerprint is SHA-256 over a domain prefix, a 0x00 separator and a
// canonical JSON object whose members appear in the exact order the caller
// supplies them. Map iteration order never reaches the encoder.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Size is the digest length in bytes.
const Size = sha256.Size

// Hash is a content fingerprint.
type Hash [Size]byte

// Field is one named business value, in serialization order.
type Field struct {
	Name  string
	Value any
}

// F is shorthand for building a Field.
func F(name string, value any) Field {
	return Field{Name: name, Value: value}
}

// String returns the lower-case hex form used in transaction records and on the ledger.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Parse decodes a 64 character hex digest.
func Parse(s string) (Hash, error) {
	var h Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parsing fingerprint: %w", err)
	}
	if len(decoded) != Size {
		return h, fmt.Errorf("fingerprint is %d bytes, want %d", len(decoded), Size)
	}
	copy(h[:], decoded)
	return h, nil
}

// Compute returns the fingerprint of fields under the given domain.
//
// Malformed input (empty domain, empty or duplicate field name, unsupported
// value type) is a programming error and panics.
func Compute(domain string, fields []Field) Hash {
	if domain == "" {
		panic("fingerprint: empty domain")
	}
	data, err := Encode(fields)
	if err != nil {
		panic("fingerprint: " + err.Error())
	}

	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Encode produces the canonical JSON object for fields.
//
// Strings are NFC normalized and written without HTML escaping, times are
// RFC 3339 in UTC at second precision, integers are decimal. Floats are
// rejected because their textual form is not stable.
func Encode(fields []Field) ([]byte, error) {
	var buf bytes.Buffer
	seen := make(map[string]struct{}, len(fields))

	buf.WriteByte('{')
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field %d has no name", i)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}

		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(&buf, f.Name); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeValue(&buf, f.Value); err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		return writeString(buf, val)
	case *string:
		if val == nil {
			buf.WriteString("null")
			return nil
		}
		return writeString(buf, *val)
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
	case time.Time:
		return writeString(buf, formatTime(val))
	case *time.Time:
		if val == nil {
			buf.WriteString("null")
			return nil
		}
		return writeString(buf, formatTime(*val))
	case float32, float64:
		return fmt.Errorf("floats are not allowed: %v", val)
	default:
		return fmt.Errorf("unsupported type %T", v)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	// Encoder terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
