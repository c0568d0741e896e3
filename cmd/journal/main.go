package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"kvsstreamer/internal/repository/sqlite"
)

func main() {
	dbPath := flag.String("db", "data/streamer.db", "Database path")
	keep := flag.Duration("keep", 0, "Delete detections older than this (0 keeps everything)")
	limit := flag.Int("sessions", 10, "Number of recent sessions to show")
	flag.Parse()

	// Otwarcie bazy wykonuje też migrację schematu
	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	sessions := sqlite.NewSessionRepository(db)
	detections := sqlite.NewDetectionRepository(db)

	if *keep > 0 {
		cutoff := time.Now().Add(-*keep)
		n, err := detections.DeleteBefore(cutoff)
		if err != nil {
			log.Fatalf("Failed to prune detections: %v", err)
		}
		fmt.Printf("🧹 Deleted %d detections older than %s\n", n, cutoff.Format(time.RFC3339))
	}

	recent, err := sessions.GetRecent(*limit)
	if err != nil {
		log.Fatalf("Failed to read sessions: %v", err)
	}
	if len(recent) == 0 {
		fmt.Println("No sessions recorded")
		return
	}

	fmt.Printf("\n📊 Recent sessions:\n")
	for _, s := range recent {
		ended := "running"
		if s.EndedAt != nil {
			ended = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Printf("   %s  %s  %dx%d @ %.2f fps  annotated=%v  %s\n",
			s.ID, s.StartedAt.Format(time.RFC3339), s.Width, s.Height, s.FPS, s.Annotated, ended)
		fmt.Printf("      written=%d read_failures=%d write_failures=%d\n",
			s.FramesWritten, s.ReadFailures, s.WriteFailures)

		counts, err := detections.CountByLabel(s.ID)
		if err != nil {
			log.Printf("⚠️  Failed to count detections for %s: %v", s.ID, err)
			continue
		}
		for label, count := range counts {
			fmt.Printf("      - %s: %d\n", label, count)
		}
	}
}
