// Package utils holds small helpers shared across the image codec, the
// builder, and the cmd/nsi driver. Keep it free of any component-specific
// logic; if a helper is only used by one package it belongs there instead.
package utils

import (
	"bytes"
	"fmt"
	"io"
	"math"
)

// SafeTruncate truncates str to at most limit bytes, used for trimming
// commit hashes in build metadata.
func SafeTruncate(str string, limit int) string {
	if len(str) > limit {
		return str[0:limit]
	}
	return str
}

// FormatBinaryBytes renders a byte count using binary (kiB/MiB/...) units,
// used when logging payload and compressed sizes.
func FormatBinaryBytes(b int64) string {
	n := float64(b)
	units := []string{"B", "kiB", "MiB", "GiB", "TiB", "PiB", "EiB", "ZiB", "YiB"}
	for _, unit := range units {
		if n > math.Pow(2, 10) {
			n /= math.Pow(2, 10)
		} else {
			val := fmt.Sprintf("%.2f%s", n, unit)
			if val == "0.00B" {
				return "0B"
			}
			return val
		}
	}
	return "a lot"
}

type multiErr []error

func (m multiErr) Error() string {
	var b bytes.Buffer
	b.WriteString("encountered multiple errors:")
	for _, err := range m {
		b.WriteString("\n\t... " + err.Error())
	}
	return b.String()
}

// CloseMany closes every closer and aggregates any resulting errors,
// mirroring the teacher's App.Close fan-in but surfacing every failure
// instead of only the first.
func CloseMany(closers []io.Closer) error {
	errs := make([]error, 0, len(closers))
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return multiErr(errs)
	}
	return nil
}
