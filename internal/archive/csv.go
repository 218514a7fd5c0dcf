package archive

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/tripwire-data/telematics.report/internal/telemetry"
)

// CSVHeader is the column order the dataset tooling downstream expects.
var CSVHeader = []string{
	"timestamp", "sessionId", "label",
	"accX", "accY", "accZ", "accMag",
	"gyroX", "gyroY", "gyroZ", "gyroMag",
	"rotVecX", "rotVecY", "rotVecZ", "rotVecW",
	"latitude", "longitude", "speed", "altitude",
}

// WriteCSV writes frames to w as CSV with the standard header row.
func WriteCSV(w io.Writer, frames []telemetry.Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, f := range frames {
		if err := cw.Write(csvRow(f)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(f telemetry.Frame) []string {
	num := func(v float64) string {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return []string{
		strconv.FormatInt(f.Timestamp, 10), f.SessionID, strconv.Itoa(f.Label),
		num(f.AccX), num(f.AccY), num(f.AccZ), num(f.AccMag),
		num(f.GyroX), num(f.GyroY), num(f.GyroZ), num(f.GyroMag),
		num(f.RotVecX), num(f.RotVecY), num(f.RotVecZ), num(f.RotVecW),
		num(f.Latitude), num(f.Longitude), num(f.Speed), num(f.Altitude),
	}
}
