package ingest

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

const knotsToMetersPerSecond = 0.514444

// SerialGPS is a location source that reads NMEA 0183 sentences from a serial
// GPS receiver. RMC sentences carry position and ground speed, GGA sentences
// carry altitude; a location reading is offered on every valid RMC fix using
// the last known altitude.
type SerialGPS struct {
	Device string
	Baud   int

	// openPort is swappable so tests can feed canned sentences through a
	// pipe instead of real hardware.
	openPort func() (io.ReadCloser, error)
}

// NewSerialGPS returns a source reading from the serial device at path. A
// zero baud rate defaults to 9600, the NMEA standard rate.
func NewSerialGPS(device string, baud int) *SerialGPS {
	if baud == 0 {
		baud = 9600
	}
	g := &SerialGPS{Device: device, Baud: baud}
	g.openPort = func() (io.ReadCloser, error) {
		mode := &serial.Mode{
			BaudRate: g.Baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		return serial.Open(g.Device, mode)
	}
	return g
}

func (g *SerialGPS) Name() string { return "gps:" + g.Device }

// Run reads sentences until the context ends or the port fails. Unparseable
// lines are skipped; the serializer validates component counts again on its
// side, so a bad sentence can never reach the state.
func (g *SerialGPS) Run(ctx context.Context, sink *Serializer) error {
	port, err := g.openPort()
	if err != nil {
		return fmt.Errorf("failed to open gps device %s: %w", g.Device, err)
	}
	defer port.Close()

	scan := bufio.NewScanner(port)
	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// Read in a separate goroutine so the blocking Scan does not keep us
	// from observing context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	var fix nmeaFix
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErrChan:
			return err
		case line, ok := <-lineChan:
			if !ok {
				return nil
			}
			if fix.apply(line) {
				sink.Offer(Reading{
					Channel: Location,
					Values:  []float64{fix.lat, fix.lon, fix.speed, fix.alt},
				})
			}
		}
	}
}

// nmeaFix accumulates position state across sentences.
type nmeaFix struct {
	lat, lon, speed, alt float64
}

// apply parses one sentence into the fix. It returns true when the sentence
// was a valid RMC fix, i.e. when a location reading should be emitted.
func (f *nmeaFix) apply(line string) bool {
	fields, ok := splitSentence(line)
	if !ok || len(fields) == 0 {
		return false
	}

	typ := fields[0]
	if len(typ) > 3 {
		typ = typ[len(typ)-3:] // accept any talker prefix (GP, GN, ...)
	}
	switch strings.ToUpper(typ) {
	case "RMC":
		return f.applyRMC(fields)
	case "GGA":
		f.applyGGA(fields)
	}
	return false
}

// splitSentence validates the framing and XOR checksum of an NMEA sentence
// and returns its comma-separated fields.
func splitSentence(line string) ([]string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nil, false
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 || len(line) < star+3 {
		return nil, false
	}
	payload := line[1:star]
	want, err := hex.DecodeString(line[star+1 : star+3])
	if err != nil || len(want) != 1 {
		return nil, false
	}
	var got byte
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	if got != want[0] {
		return nil, false
	}
	return strings.Split(payload, ","), true
}

// applyRMC handles Recommended Minimum sentences:
// type, time, status(A/V), lat, N/S, lon, E/W, speed(knots), course, date, ...
func (f *nmeaFix) applyRMC(fields []string) bool {
	if len(fields) < 10 || strings.TrimSpace(fields[2]) != "A" {
		return false
	}
	lat, latOK := parseLatLon(fields[3], fields[4])
	lon, lonOK := parseLatLon(fields[5], fields[6])
	if !latOK || !lonOK {
		return false
	}
	f.lat, f.lon = lat, lon
	if kt, err := strconv.ParseFloat(fields[7], 64); err == nil {
		f.speed = kt * knotsToMetersPerSecond
	}
	return true
}

// applyGGA handles fix-data sentences; field 9 is antenna altitude in metres.
func (f *nmeaFix) applyGGA(fields []string) {
	if len(fields) < 10 {
		return
	}
	if alt, err := strconv.ParseFloat(fields[9], 64); err == nil {
		f.alt = alt
	}
}

// parseLatLon converts NMEA ddmm.mmmm plus hemisphere into signed decimal
// degrees.
func parseLatLon(value, hemisphere string) (float64, bool) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	deg := float64(int(v / 100))
	minutes := v - deg*100
	out := deg + minutes/60
	switch strings.ToUpper(strings.TrimSpace(hemisphere)) {
	case "S", "W":
		out = -out
	case "N", "E":
	default:
		return 0, false
	}
	return out, true
}
