package main

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/moto-rental/internal/domain/coupon"
)

// header is the expected first line of every import file.
var header = []string{"promo_code", "type", "value", "minimum", "active", "start", "expiry"}

// rowError reports a line that could not be turned into a valid coupon.
type rowError struct {
	Line int
	Err  error
}

func (e *rowError) Error() string { return "line " + strconv.Itoa(e.Line) + ": " + e.Err.Error() }

func (e *rowError) Unwrap() error { return e.Err }

// readRows streams the CSV in r and calls fn for every data row. Rows that
// fail to parse or fail coupon.Check are passed to bad and skipped.
func readRows(r io.Reader, fn func(line int, c *coupon.Coupon) error, bad func(*rowError)) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	first, err := cr.Read()
	if err != nil {
		return errors.Wrap(err, "read header")
	}
	for i, col := range header {
		if !strings.EqualFold(strings.TrimSpace(first[i]), col) {
			return errors.Errorf("unexpected header column %d: %q, want %q", i+1, first[i], col)
		}
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) && errors.Is(perr.Err, csv.ErrFieldCount) {
				bad(&rowError{Line: perr.StartLine, Err: perr.Err})
				continue
			}
			return errors.Wrap(err, "read row")
		}
		line, _ := cr.FieldPos(0)
		c, err := parseRow(rec)
		if err == nil {
			err = c.Check()
		}
		if err != nil {
			bad(&rowError{Line: line, Err: err})
			continue
		}
		if err := fn(line, c); err != nil {
			return err
		}
	}
}

func parseRow(rec []string) (*coupon.Coupon, error) {
	c := &coupon.Coupon{
		PromoCode: coupon.NormalizeCode(rec[0]),
		Type:      coupon.Type(strings.ToUpper(strings.TrimSpace(rec[1]))),
	}

	var err error
	if c.DiscountValue, err = decimal.NewFromString(strings.TrimSpace(rec[2])); err != nil {
		return nil, errors.Wrap(err, "value")
	}
	if m := strings.TrimSpace(rec[3]); m != "" {
		if c.MinimumCartValue, err = decimal.NewFromString(m); err != nil {
			return nil, errors.Wrap(err, "minimum")
		}
	}
	if a := strings.TrimSpace(rec[4]); a == "" {
		c.IsActive = true
	} else if c.IsActive, err = strconv.ParseBool(a); err != nil {
		return nil, errors.Wrap(err, "active")
	}
	if c.StartDate, err = parseTime(rec[5]); err != nil {
		return nil, errors.Wrap(err, "start")
	}
	if c.ExpiryDate, err = parseTime(rec[6]); err != nil {
		return nil, errors.Wrap(err, "expiry")
	}
	return c, nil
}

// parseTime accepts RFC 3339 timestamps or bare dates, which are read as
// midnight UTC. An empty field means no bound.
func parseTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.Errorf("cannot parse %q as RFC 3339 or YYYY-MM-DD", s)
}
