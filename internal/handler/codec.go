package handler

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	ogenjson "github.com/ogen-go/ogen/json"
	"github.com/shopspring/decimal"
)

const maxBodySize = 1 << 20

// badRequestError marks malformed request bodies and parameters.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return "bad request: " + e.err.Error() }

func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &badRequestError{err: errors.Errorf(format, args...)}
}

// decodeObject reads a JSON object body and calls fn for every field. An
// empty body is treated as an empty object.
func decodeObject(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return &badRequestError{err: errors.Wrap(err, "read body")}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	d := jx.DecodeBytes(body)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		var bre *badRequestError
		if errors.As(err, &bre) {
			return bre
		}
		return &badRequestError{err: err}
	}
	return nil
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		raw, err := d.Raw()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(raw.String())
	default:
		return decimal.Decimal{}, errors.New("expected number")
	}
}

func decodeDate(d *jx.Decoder) (time.Time, error) {
	t, err := ogenjson.DecodeDate(d)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "expected YYYY-MM-DD date")
	}
	return t, nil
}

func encodeMoney(e *jx.Encoder, field string, v decimal.Decimal) {
	e.FieldStart(field)
	e.Raw([]byte(v.StringFixed(2)))
}

func encodeDate(e *jx.Encoder, field string, v time.Time) {
	e.FieldStart(field)
	ogenjson.EncodeDate(e, v)
}

func encodeDateTime(e *jx.Encoder, field string, v time.Time) {
	e.FieldStart(field)
	ogenjson.EncodeDateTime(e, v)
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
