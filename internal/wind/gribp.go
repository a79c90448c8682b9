package wind

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// A gribp file holds the u and v wind components of one isobaric level as a
// flat sequence of fixed-size records:
//
//	float32 latitude | float32 longitude | float32 value | component byte | '\n'
//
// Floats are big-endian IEEE-754. The component byte is 'u' (eastward) or
// 'v' (northward), both in m/s.
const recordSize = 14

// Wind component labels.
const (
	ComponentU byte = 'u'
	ComponentV byte = 'v'
)

// Record is a single gridded wind component sample.
type Record struct {
	Lat       float32
	Lon       float32
	Value     float32
	Component byte
}

// ReadRecords decodes every record in r.
func ReadRecords(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	var (
		records []Record
		buf     [recordSize]byte
	)

	for i := 0; ; i++ {
		_, err := io.ReadFull(br, buf[:])
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("record %d: truncated (%d bytes per record)", i, recordSize)
		}
		if err != nil {
			return nil, fmt.Errorf("reading record %d: %w", i, err)
		}

		rec := Record{
			Lat:       math.Float32frombits(binary.BigEndian.Uint32(buf[0:4])),
			Lon:       math.Float32frombits(binary.BigEndian.Uint32(buf[4:8])),
			Value:     math.Float32frombits(binary.BigEndian.Uint32(buf[8:12])),
			Component: buf[12],
		}
		if buf[13] != '\n' {
			return nil, fmt.Errorf("record %d: missing record terminator", i)
		}
		if rec.Component != ComponentU && rec.Component != ComponentV {
			return nil, fmt.Errorf("record %d: unknown component %q", i, rec.Component)
		}
		records = append(records, rec)
	}
}

// WriteRecord encodes rec onto w.
func WriteRecord(w io.Writer, rec Record) error {
	var buf [recordSize]byte
	binary.BigEndian.PutUint32(buf[0:4], math.Float32bits(rec.Lat))
	binary.BigEndian.PutUint32(buf[4:8], math.Float32bits(rec.Lon))
	binary.BigEndian.PutUint32(buf[8:12], math.Float32bits(rec.Value))
	buf[12] = rec.Component
	buf[13] = '\n'
	_, err := w.Write(buf[:])
	return err
}

// ConvertLevel reads the text output of `grib_get_data -p shortName` for a
// single level and writes the u/v samples to w in gribp form. The first line
// is a column header and is skipped; rows for other parameters are dropped.
// Returns the number of records written.
func ConvertLevel(r io.Reader, w io.Writer) (int, error) {
	scanner := bufio.NewScanner(r)
	bw := bufio.NewWriter(w)

	n := 0
	line := 0
	for scanner.Scan() {
		line++
		if line == 1 {
			continue
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		label := fields[3]
		if label != "u" && label != "v" {
			continue
		}

		var vals [3]float32
		for i := 0; i < 3; i++ {
			f, err := strconv.ParseFloat(fields[i], 32)
			if err != nil {
				return n, fmt.Errorf("line %d: parsing %q: %w", line, fields[i], err)
			}
			vals[i] = float32(f)
		}

		rec := Record{Lat: vals[0], Lon: vals[1], Value: vals[2], Component: label[0]}
		if err := WriteRecord(bw, rec); err != nil {
			return n, fmt.Errorf("writing record: %w", err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("reading grib_get_data output: %w", err)
	}

	return n, bw.Flush()
}
