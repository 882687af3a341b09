// Package export writes recorded readings to files.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"linescale-gui/internal/protocol"
)

var DefaultHeader = []string{"Timestamp", "Elapsed", "Force", "Unit"}

// ErrHeaderColumns is returned for a custom header whose column count does
// not match the exported rows.
var ErrHeaderColumns = errors.New("header must have one name per column")

// CheckHeader validates a custom header. An empty header selects
// DefaultHeader and is valid.
func CheckHeader(header []string) error {
	if len(header) == 0 {
		return nil
	}
	if len(header) != len(DefaultHeader) {
		return errors.Wrapf(ErrHeaderColumns, "got %d names, want %d (%s)",
			len(header), len(DefaultHeader), strings.Join(DefaultHeader, ","))
	}
	return nil
}

// SplitHeader splits a comma separated header line and trims each name.
// Blank text gives a nil header.
func SplitHeader(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	fields := strings.Split(text, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// CSVOptions configures how readings are exported.
type CSVOptions struct {
	FilterByTime bool
	StartTime    time.Time
	EndTime      time.Time
	CustomHeader []string // replaces DefaultHeader when set
}

// CSVFile writes readings to a new file at path.
func CSVFile(path string, readings []protocol.Reading, opts CSVOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer f.Close()

	if err := CSV(f, readings, opts); err != nil {
		return err
	}
	return errors.Wrap(f.Close(), "failed to close file")
}

// CSV writes one row per reading. Elapsed is in seconds since the first
// exported reading.
func CSV(out io.Writer, readings []protocol.Reading, opts CSVOptions) error {
	if err := CheckHeader(opts.CustomHeader); err != nil {
		return err
	}
	w := csv.NewWriter(out)

	header := DefaultHeader
	if len(opts.CustomHeader) > 0 {
		header = opts.CustomHeader
	}
	if err := w.Write(header); err != nil {
		return errors.Wrap(err, "failed to write header")
	}

	var first time.Time
	for _, r := range readings {
		if opts.FilterByTime {
			if r.At.Before(opts.StartTime) || (!opts.EndTime.IsZero() && r.At.After(opts.EndTime)) {
				continue
			}
		}
		if first.IsZero() {
			first = r.At
		}

		record := []string{
			r.At.Format("2006-01-02 15:04:05.000"),
			strconv.FormatFloat(r.At.Sub(first).Seconds(), 'f', 3, 64),
			strconv.FormatFloat(r.Value, 'f', 2, 64),
			string(r.Unit),
		}
		if err := w.Write(record); err != nil {
			return errors.Wrap(err, "failed to write record")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "failed to flush csv writer")
	}
	return nil
}

// ParseCustomHeader reads a single-line CSV file and returns the fields as a header row.
func ParseCustomHeader(filePath string) ([]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open header file")
	}
	defer f.Close()

	r := csv.NewReader(f)
	record, err := r.Read()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}

	return record, nil
}
