package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Decimal reads a numeric or string JSON value. Missing, null and
// unparseable values return nil.
func Decimal(r gjson.Result) *decimal.Decimal {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	s := strings.TrimSpace(r.String())
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

// DecimalOrZero is Decimal with a zero default
func DecimalOrZero(r gjson.Result) decimal.Decimal {
	if d := Decimal(r); d != nil {
		return *d
	}
	return decimal.Zero
}

// FromNull converts a NullDecimal into a pointer
func FromNull(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// Decode unmarshals a provider response body
func Decode(body []byte, out interface{}) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}

// RawMap decodes body into a generic map for provider_data. Non-object
// bodies are wrapped under "data".
func RawMap(body []byte) map[string]interface{} {
	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err == nil && out != nil {
		return out
	}
	var v interface{}
	if err := json.Unmarshal(body, &v); err == nil {
		return map[string]interface{}{"data": v}
	}
	return map[string]interface{}{"raw": string(body)}
}

// ToMap converts a typed response into a generic map
func ToMap(v interface{}) map[string]interface{} {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return RawMap(b)
}

var (
	minAmountPattern = regexp.MustCompile(`(?i)(?:min(?:imum|imal)?(?:\s+amount)?)[^0-9]{0,40}([0-9]+(?:\.[0-9]+)?)`)
	maxAmountPattern = regexp.MustCompile(`(?i)(?:max(?:imum|imal)?(?:\s+amount)?)[^0-9]{0,40}([0-9]+(?:\.[0-9]+)?)`)
)

// ScrapeAmountHint recovers min/max bounds from free-form error text. It
// returns nil when the text mentions neither.
func ScrapeAmountHint(text string) (lo, hi *decimal.Decimal) {
	if m := minAmountPattern.FindStringSubmatch(text); len(m) == 2 {
		if d, err := decimal.NewFromString(m[1]); err == nil {
			lo = &d
		}
	}
	if m := maxAmountPattern.FindStringSubmatch(text); len(m) == 2 {
		if d, err := decimal.NewFromString(m[1]); err == nil {
			hi = &d
		}
	}
	return lo, hi
}

// FlexString decodes a JSON string or number into a string. Providers are
// inconsistent about id types.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(data)
	return nil
}

// String returns the decoded value
func (f FlexString) String() string {
	return string(f)
}

// Timestamp reads an RFC3339 string or a unix timestamp in seconds or
// milliseconds
func Timestamp(r gjson.Result) *time.Time {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	var t time.Time
	switch r.Type {
	case gjson.Number:
		t = unixAuto(r.Int())
	case gjson.String:
		s := strings.TrimSpace(r.String())
		if s == "" {
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			t = unixAuto(n)
			break
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil
		}
		t = parsed
	default:
		return nil
	}
	t = t.UTC()
	return &t
}

func unixAuto(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}
