package cell

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnsupportedColumn is returned when a result column reports a type
	// name outside the recognized table. Decoding never guesses from the
	// runtime value, so an unknown name is fatal for the statement.
	ErrUnsupportedColumn = errors.New("unsupported column type")

	// ErrUnsupportedBind is returned when a cell variant cannot be bound
	// into a scalar statement placeholder.
	ErrUnsupportedBind = errors.New("unsupported bind type")
)

// columnKinds is the closed table of driver-reported type names. It covers
// the three supported engines: sqlite reports declared types, mysql its
// field types, postgres its canonical type names.
var columnKinds = map[string]Kind{
	// text family
	"TEXT":       KindString,
	"VARCHAR":    KindString,
	"CHAR":       KindString,
	"NVARCHAR":   KindString,
	"TINYTEXT":   KindString,
	"MEDIUMTEXT": KindString,
	"LONGTEXT":   KindString,
	"ENUM":       KindString,
	"BPCHAR":     KindString,
	"NAME":       KindString,
	"UUID":       KindString,

	// integer family
	"INTEGER":   KindInteger,
	"INT":       KindInteger,
	"BIGINT":    KindInteger,
	"TINYINT":   KindInteger,
	"SMALLINT":  KindInteger,
	"MEDIUMINT": KindInteger,
	"DECIMAL":   KindInteger,
	"NUMERIC":   KindInteger,
	"INT2":      KindInteger,
	"INT4":      KindInteger,
	"INT8":      KindInteger,

	// unsigned/timestamp family
	"UNSIGNED BIGINT":    KindUnsigned,
	"UNSIGNED INT":       KindUnsigned,
	"UNSIGNED TINYINT":   KindUnsigned,
	"UNSIGNED SMALLINT":  KindUnsigned,
	"UNSIGNED MEDIUMINT": KindUnsigned,
	"TIMESTAMP":          KindUnsigned,

	// float family
	"FLOAT":  KindReal,
	"DOUBLE": KindReal,
	"REAL":   KindReal,
	"FLOAT4": KindReal,
	"FLOAT8": KindReal,

	// boolean
	"BOOLEAN": KindBool,
	"BOOL":    KindBool,

	// temporal
	"DATE":        KindDate,
	"TIME":        KindTime,
	"TIMETZ":      KindTime,
	"DATETIME":    KindDatetime,
	"TIMESTAMPTZ": KindDatetime,

	// json
	"JSON":  KindJSON,
	"JSONB": KindJSON,
}

// ColumnKinds returns a copy of the recognized type-name table.
func ColumnKinds() map[string]Kind {
	out := make(map[string]Kind, len(columnKinds))
	for k, v := range columnKinds {
		out[k] = v
	}
	return out
}

// Decode converts one raw driver value into a Cell. The variant is chosen
// solely by columnType; raw only supplies the value. A NULL raw yields the
// typed NULL of the column's kind.
func Decode(columnType string, raw any) (Cell, error) {
	name := strings.ToUpper(strings.TrimSpace(columnType))
	// sqlite keeps length/precision suffixes in declared types
	if i := strings.IndexByte(name, '('); i > 0 {
		name = strings.TrimSpace(name[:i])
	}

	kind, ok := columnKinds[name]
	if !ok {
		return Cell{}, fmt.Errorf("%w: %q", ErrUnsupportedColumn, columnType)
	}
	if raw == nil {
		return Null(kind), nil
	}

	switch kind {
	case KindInteger:
		v, err := toInt64(raw)
		if err != nil {
			return Cell{}, decodeErr(name, raw, err)
		}
		return Int(v), nil
	case KindUnsigned:
		v, err := toUint64(raw)
		if err != nil {
			return Cell{}, decodeErr(name, raw, err)
		}
		return Uint(v), nil
	case KindReal:
		v, err := toFloat64(raw)
		if err != nil {
			return Cell{}, decodeErr(name, raw, err)
		}
		return Float(v), nil
	case KindString:
		return Str(toString(raw)), nil
	case KindBool:
		v, err := toBool(raw)
		if err != nil {
			return Cell{}, decodeErr(name, raw, err)
		}
		return Bool(v), nil
	case KindDate:
		t, err := toTime(raw, "2006-01-02")
		if err != nil {
			return Cell{}, decodeErr(name, raw, err)
		}
		return Date(t), nil
	case KindTime:
		t, err := toTime(raw, "15:04:05")
		if err != nil {
			return Cell{}, decodeErr(name, raw, err)
		}
		return Clock(t), nil
	case KindDatetime:
		t, err := toTime(raw, "2006-01-02 15:04:05")
		if err != nil {
			return Cell{}, decodeErr(name, raw, err)
		}
		return Datetime(t), nil
	case KindJSON:
		doc, err := parseJSON(raw)
		if err != nil {
			return Cell{}, decodeErr(name, raw, err)
		}
		return JSONDoc(doc), nil
	}
	return Cell{}, fmt.Errorf("%w: %q", ErrUnsupportedColumn, columnType)
}

func decodeErr(colType string, raw any, err error) error {
	return fmt.Errorf("decode %s from %T: %w", colType, raw, err)
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, errors.New("not an integer value")
}

func toUint64(raw any) (uint64, error) {
	switch v := raw.(type) {
	case uint64:
		return v, nil
	case int64:
		if v < 0 {
			return 0, errors.New("negative value for unsigned column")
		}
		return uint64(v), nil
	case []byte:
		return strconv.ParseUint(string(v), 10, 64)
	case string:
		return strconv.ParseUint(v, 10, 64)
	case time.Time:
		// mysql TIMESTAMP scanned with parseTime enabled
		return uint64(v.Unix()), nil
	}
	return 0, errors.New("not an unsigned value")
}

func toFloat64(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	case string:
		return strconv.ParseFloat(v, 64)
	}
	return 0, errors.New("not a float value")
}

func toString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case []byte:
		return parseBoolText(string(v))
	case string:
		return parseBoolText(v)
	}
	return false, errors.New("not a boolean value")
}

func parseBoolText(s string) (bool, error) {
	switch s {
	case "1", "true", "TRUE":
		return true, nil
	case "0", "false", "FALSE":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean literal: %q", s)
}

var datetimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05",
}

func toTime(raw any, preferred string) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case []byte:
		return parseTimeText(string(v), preferred)
	case string:
		return parseTimeText(v, preferred)
	}
	return time.Time{}, errors.New("not a temporal value")
}

func parseTimeText(s, preferred string) (time.Time, error) {
	if t, err := time.Parse(preferred, s); err == nil {
		return t, nil
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized temporal literal: %q", s)
}

func parseJSON(raw any) (any, error) {
	var text string
	switch v := raw.(type) {
	case []byte:
		text = string(v)
	case string:
		text = v
	default:
		return nil, errors.New("not a json value")
	}
	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
