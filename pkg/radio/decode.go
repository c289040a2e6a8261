// Package radio receives soil humidity readings from the plant pots.
//
// Each pot carries an nRF24 transmitter. A microcontroller on the robot
// receives the 32-byte payloads and forwards them over a serial line, one
// payload per line. Payloads are NUL-padded text in one of two forms:
//
//	P0:41.5,P1:63        one record per plant index
//	)                    legacy: a single character whose code is the humidity
package radio

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// PayloadSize is the fixed nRF24 payload length.
const PayloadSize = 32

// ErrDecode is returned for payloads that carry no usable reading.
var ErrDecode = errors.New("radio: undecodable payload")

// Sample is one humidity reading for one plant.
type Sample struct {
	PlantIndex int     `json:"plant_index"`
	Humidity   float64 `json:"humidity"`
}

// Decode parses one payload into samples.
func Decode(payload []byte) ([]Sample, error) {
	payload = bytes.TrimRight(payload, "\r\n")
	if len(payload) > PayloadSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds payload size", ErrDecode, len(payload))
	}

	text := string(bytes.TrimRight(payload, "\x00"))
	if text == "" {
		return nil, fmt.Errorf("%w: empty", ErrDecode)
	}
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: not utf-8", ErrDecode)
	}

	if utf8.RuneCountInString(text) == 1 {
		r, _ := utf8.DecodeRuneInString(text)
		return checked([]Sample{{PlantIndex: 0, Humidity: float64(r)}})
	}

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == ' '
	})
	samples := make([]Sample, 0, len(fields))
	for _, f := range fields {
		s, err := decodeRecord(f)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no records in %q", ErrDecode, text)
	}
	return checked(samples)
}

func decodeRecord(f string) (Sample, error) {
	if len(f) < 4 || (f[0] != 'P' && f[0] != 'p') {
		return Sample{}, fmt.Errorf("%w: bad record %q", ErrDecode, f)
	}
	idxStr, valStr, ok := strings.Cut(f[1:], ":")
	if !ok {
		return Sample{}, fmt.Errorf("%w: bad record %q", ErrDecode, f)
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil || idx < 0 {
		return Sample{}, fmt.Errorf("%w: bad plant index %q", ErrDecode, idxStr)
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: bad humidity %q", ErrDecode, valStr)
	}
	return Sample{PlantIndex: idx, Humidity: val}, nil
}

func checked(samples []Sample) ([]Sample, error) {
	for _, s := range samples {
		if math.IsNaN(s.Humidity) || s.Humidity < 0 || s.Humidity > 100 {
			return nil, fmt.Errorf("%w: humidity %v out of range for plant %d", ErrDecode, s.Humidity, s.PlantIndex)
		}
	}
	return samples, nil
}
