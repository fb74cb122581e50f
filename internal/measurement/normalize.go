package measurement

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// verdictKeys are checked in order; the prediction service uses "prediction",
// the plant historian uses "passorfail".
var verdictKeys = []string{"verdict", "prediction", "passorfail"}

type lookupFunc func(key string) (any, bool)

// Normalize builds a Record from a decoded upstream mapping. The returned
// record has no Timestamp; the engine stamps it on admission.
func Normalize(raw map[string]any) (Record, error) {
	if raw == nil {
		return Record{}, &FieldError{Field: "verdict", Reason: "is missing"}
	}
	return normalize(func(key string) (any, bool) {
		value, ok := raw[key]
		return value, ok
	})
}

// NormalizeJSON builds a Record from one JSON object.
func NormalizeJSON(payload []byte) (Record, error) {
	if !gjson.ValidBytes(payload) {
		return Record{}, &FieldError{Field: "$", Reason: "is not valid JSON"}
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return Record{}, &FieldError{Field: "$", Reason: "is not a JSON object"}
	}
	return normalize(func(key string) (any, bool) {
		result := root.Get(key)
		if !result.Exists() {
			return nil, false
		}
		switch result.Type {
		case gjson.Null:
			return nil, true
		case gjson.Number:
			return result.Num, true
		case gjson.String:
			return result.Str, true
		case gjson.True, gjson.False:
			return result.Bool(), true
		default:
			return result.Raw, true
		}
	})
}

func normalize(lookup lookupFunc) (Record, error) {
	var rec Record

	verdict, err := lookupVerdict(lookup)
	if err != nil {
		return Record{}, err
	}
	rec.Verdict = verdict

	if value, ok := lookup("id"); ok && value != nil {
		id, ok := identString(value)
		if !ok {
			return Record{}, &FieldError{Field: "id", Reason: "must be a string or number"}
		}
		rec.ID = id
	}

	for _, key := range []string{"mold_code", "mold_name"} {
		value, ok := lookup(key)
		if !ok || value == nil {
			continue
		}
		code, ok := identString(value)
		if !ok {
			return Record{}, &FieldError{Field: key, Reason: "must be a string or number"}
		}
		rec.MoldCode = code
		break
	}

	for _, known := range KnownReadings {
		value, ok := lookup(known.Name)
		if !ok || value == nil {
			continue
		}
		number, ok := numericValue(value)
		if !ok {
			return Record{}, &FieldError{Field: known.Name, Reason: "is not numeric"}
		}
		if rec.Readings == nil {
			rec.Readings = make(map[string]float64, len(KnownReadings))
		}
		rec.Readings[known.Name] = number
	}

	if value, ok := lookup("registration_time"); ok {
		rec.RegistrationTime, _ = value.(string)
	}
	if value, ok := lookup("timestamp"); ok {
		rec.SourceTimestamp, _ = value.(string)
	}
	return rec, nil
}

func lookupVerdict(lookup lookupFunc) (Verdict, error) {
	for _, key := range verdictKeys {
		value, ok := lookup(key)
		if !ok || value == nil {
			continue
		}
		text, isString := value.(string)
		if !isString {
			return "", &FieldError{Field: key, Reason: "must be \"Pass\" or \"Fail\""}
		}
		verdict, ok := ParseVerdict(text)
		if !ok {
			return "", &FieldError{Field: key, Reason: "must be \"Pass\" or \"Fail\", got " + strconv.Quote(text)}
		}
		return verdict, nil
	}
	return "", &FieldError{Field: "verdict", Reason: "is missing"}
}

func identString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", false
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	default:
		return "", false
	}
}

func numericValue(value any) (float64, bool) {
	var out float64
	switch v := value.(type) {
	case float64:
		out = v
	case float32:
		out = float64(v)
	case int:
		out = float64(v)
	case int64:
		out = float64(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, true
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		out = parsed
	default:
		return 0, false
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, false
	}
	return out, true
}
