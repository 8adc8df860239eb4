// Package seatcode converts between human readable seat identifiers such as
// "A1" or "AB12" and their (row, column) parts, and enumerates the seat
// layout of a showtime.  Layout is used both when provisioning seats and when
// rendering a seat map, so the two always agree on which identifiers exist.
package seatcode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformed is returned by Parse when an identifier is not a run of
	// letters followed by a positive column number.
	ErrMalformed = errors.New("malformed seat identifier")
	// ErrInvalidLayout is returned by Layout for non-positive dimensions.
	ErrInvalidLayout = errors.New("invalid seat layout")
)

// Row groups the identifiers of one row in column order.
type Row struct {
	Label string   `json:"label"`
	Seats []string `json:"seats"`
}

// Normalize trims whitespace and upper-cases an identifier.
func Normalize(identifier string) string {
	return strings.ToUpper(strings.TrimSpace(identifier))
}

// Parse splits an identifier into its row label and column number.
func Parse(identifier string) (string, int, error) {
	s := Normalize(identifier)
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		i++
	}
	row, digits := s[:i], s[i:]
	if row == "" || digits == "" {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformed, identifier)
	}
	for j := 0; j < len(digits); j++ {
		if digits[j] < '0' || digits[j] > '9' {
			return "", 0, fmt.Errorf("%w: %q", ErrMalformed, identifier)
		}
	}
	col, err := strconv.Atoi(digits)
	if err != nil || col <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformed, identifier)
	}
	return row, col, nil
}

// Format joins a row label and column into an identifier.  No zero padding
// is applied, so Format("A", 1) is "A1".
func Format(row string, column int) string {
	return row + strconv.Itoa(column)
}

// RowLabel converts a zero-based row index to its label: 0 is A, 25 is Z,
// 26 is AA.
func RowLabel(i int) string {
	if i < 0 {
		return ""
	}
	var res []byte
	for {
		res = append(res, byte('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}

// RowIndex is the inverse of RowLabel.
func RowIndex(label string) (int, bool) {
	s := Normalize(label)
	if s == "" {
		return -1, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch < 'A' || ch > 'Z' {
			return -1, false
		}
		n = n*26 + int(ch-'A'+1)
	}
	return n - 1, true
}

// Layout enumerates totalSeats identifiers, seatsPerRow per row, rows
// labelled A, B, ... Z, AA, AB and so on.  The last row may be partial.
func Layout(totalSeats, seatsPerRow int) ([]string, error) {
	if totalSeats <= 0 || seatsPerRow <= 0 {
		return nil, fmt.Errorf("%w: total=%d per_row=%d", ErrInvalidLayout, totalSeats, seatsPerRow)
	}
	out := make([]string, 0, totalSeats)
	for i := 0; i < totalSeats; i++ {
		out = append(out, Format(RowLabel(i/seatsPerRow), i%seatsPerRow+1))
	}
	return out, nil
}

// Rows is Layout grouped by row.
func Rows(totalSeats, seatsPerRow int) ([]Row, error) {
	codes, err := Layout(totalSeats, seatsPerRow)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, (totalSeats+seatsPerRow-1)/seatsPerRow)
	for i, code := range codes {
		if i%seatsPerRow == 0 {
			rows = append(rows, Row{Label: RowLabel(i / seatsPerRow)})
		}
		last := &rows[len(rows)-1]
		last.Seats = append(last.Seats, code)
	}
	return rows, nil
}

// Position returns the zero-based index of an identifier within the layout,
// or false when the identifier falls outside it.
func Position(identifier string, totalSeats, seatsPerRow int) (int, bool) {
	row, col, err := Parse(identifier)
	if err != nil || seatsPerRow <= 0 || col > seatsPerRow {
		return -1, false
	}
	ri, ok := RowIndex(row)
	if !ok {
		return -1, false
	}
	pos := ri*seatsPerRow + col - 1
	if pos >= totalSeats {
		return -1, false
	}
	return pos, true
}
