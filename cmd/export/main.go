// Command export dumps archived telemetry frames to CSV, one row per frame
// in the column order the collection backend expects.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/tripwire-data/telematics.report/internal/archive"
	"github.com/tripwire-data/telematics.report/internal/security"
	"github.com/tripwire-data/telematics.report/internal/telemetry"
)

func main() {
	var dbPath string
	var sessionID string
	var outPath string

	flag.StringVar(&dbPath, "db", "telematics.db", "path to frame archive")
	flag.StringVar(&sessionID, "session", "", "export a single session (all sessions when empty)")
	flag.StringVar(&outPath, "out", "", "output file (stdout when empty)")
	flag.Parse()

	arch, err := archive.Open(dbPath)
	if err != nil {
		log.Fatalf("open archive: %v", err)
	}
	defer arch.Close()

	var frames []telemetry.Frame
	if sessionID != "" {
		frames, err = arch.SessionFrames(sessionID)
		if err != nil {
			log.Fatalf("read session %s: %v", sessionID, err)
		}
	} else {
		sessions, err := arch.Sessions()
		if err != nil {
			log.Fatalf("list sessions: %v", err)
		}
		for _, id := range sessions {
			sf, err := arch.SessionFrames(id)
			if err != nil {
				log.Fatalf("read session %s: %v", id, err)
			}
			frames = append(frames, sf...)
		}
	}

	out := os.Stdout
	if outPath != "" {
		if err := security.ValidateExportPath(outPath); err != nil {
			log.Fatalf("refusing export path: %v", err)
		}
		out, err = os.Create(outPath)
		if err != nil {
			log.Fatalf("create output: %v", err)
		}
		defer out.Close()
	}

	if err := archive.WriteCSV(out, frames); err != nil {
		log.Fatalf("write csv: %v", err)
	}
	if outPath != "" {
		fmt.Printf("exported %d frames to %s\n", len(frames), outPath)
	}
}
