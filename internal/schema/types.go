package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type is the scalar type of a column.
type Type int

const (
	TypeInvalid Type = iota
	TypeInt
	TypeString
	TypeUUID
	TypeFloat
	TypeBool
	TypeTime
	TypeBytes
)

var typeNames = map[Type]string{
	TypeInvalid: "invalid",
	TypeInt:     "int",
	TypeString:  "string",
	TypeUUID:    "uuid",
	TypeFloat:   "float",
	TypeBool:    "bool",
	TypeTime:    "time",
	TypeBytes:   "bytes",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseSQLType maps a SQL column type (e.g. VARCHAR(255), BIGSERIAL) onto a scalar type.
func ParseSQLType(sqlType string) Type {
	typeUpper := strings.ToUpper(strings.TrimSpace(sqlType))

	// Extract base type (e.g., VARCHAR(255) -> VARCHAR)
	if idx := strings.Index(typeUpper, "("); idx > 0 {
		typeUpper = typeUpper[:idx]
	}

	switch {
	case strings.Contains(typeUpper, "UUID") || typeUpper == "UNIQUEIDENTIFIER":
		return TypeUUID
	case strings.Contains(typeUpper, "INT") || strings.Contains(typeUpper, "SERIAL"):
		return TypeInt
	case strings.Contains(typeUpper, "BOOL"):
		return TypeBool
	case strings.Contains(typeUpper, "TIMESTAMP") || strings.Contains(typeUpper, "DATE") || strings.Contains(typeUpper, "TIME"):
		return TypeTime
	case strings.Contains(typeUpper, "DECIMAL") || strings.Contains(typeUpper, "NUMERIC") ||
		strings.Contains(typeUpper, "FLOAT") || strings.Contains(typeUpper, "DOUBLE") ||
		strings.Contains(typeUpper, "REAL") || strings.Contains(typeUpper, "MONEY"):
		return TypeFloat
	case strings.Contains(typeUpper, "BLOB") || strings.Contains(typeUpper, "BYTEA") || strings.Contains(typeUpper, "BINARY"):
		return TypeBytes
	default:
		return TypeString
	}
}

// Sentinel returns the reserved "unset" marker for key columns of this type.
// Numeric keys use -1, strings the empty string, identifiers and times their zero value.
func (t Type) Sentinel() any {
	switch t {
	case TypeInt:
		return int64(-1)
	case TypeFloat:
		return float64(-1)
	case TypeString:
		return ""
	case TypeUUID:
		return uuid.Nil
	case TypeTime:
		return time.Time{}
	default:
		return nil
	}
}

// IsSentinel reports whether v is NULL or the sentinel of t.
func (t Type) IsSentinel(v any) bool {
	if v == nil {
		return true
	}
	switch t {
	case TypeInt:
		n, ok := v.(int64)
		return ok && n == -1
	case TypeFloat:
		f, ok := v.(float64)
		return ok && f == -1
	case TypeString:
		s, ok := v.(string)
		return ok && s == ""
	case TypeUUID:
		id, ok := v.(uuid.UUID)
		return ok && id == uuid.Nil
	case TypeTime:
		ts, ok := v.(time.Time)
		return ok && ts.IsZero()
	}
	return false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Coerce converts a caller or driver value into the canonical Go representation of t:
// int64, string, uuid.UUID, float64, bool, time.Time or []byte. nil stays nil.
func (t Type) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeInt:
		return coerceInt(v)
	case TypeString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		case fmt.Stringer:
			return s.String(), nil
		}
	case TypeUUID:
		switch id := v.(type) {
		case uuid.UUID:
			return id, nil
		case [16]byte:
			return uuid.UUID(id), nil
		case string:
			return uuid.Parse(id)
		case []byte:
			if len(id) == 16 {
				return uuid.FromBytes(id)
			}
			return uuid.ParseBytes(id)
		}
	case TypeFloat:
		switch f := v.(type) {
		case float64:
			return f, nil
		case float32:
			return float64(f), nil
		case string:
			return strconv.ParseFloat(f, 64)
		case []byte:
			return strconv.ParseFloat(string(f), 64)
		}
		if n, err := coerceInt(v); err == nil {
			return float64(n.(int64)), nil
		}
	case TypeBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return strconv.ParseBool(b)
		case []byte:
			return strconv.ParseBool(string(b))
		}
		if n, err := coerceInt(v); err == nil {
			return n.(int64) != 0, nil
		}
	case TypeTime:
		switch ts := v.(type) {
		case time.Time:
			return ts, nil
		case string:
			return parseTime(ts)
		case []byte:
			return parseTime(string(ts))
		}
	case TypeBytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, t)
}

func coerceInt(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case uint:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return nil, fmt.Errorf("value %v is not integral", n)
		}
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, TypeInt)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}
