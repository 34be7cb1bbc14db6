// Command gen-events generates a synthetic detection batch stream for replay
// testing: a few subjects with daily routines across the configured cameras,
// written as JSON lines compatible with the -replay flag.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/banshee-data/vigil.report/internal/vigil"
)

func main() {
	output := flag.String("o", "replay.jsonl", "output path")
	days := flag.Int("days", 10, "number of days to simulate")
	cameras := flag.String("cameras", "front_door,living_room,kitchen", "comma-separated camera names")
	subjects := flag.String("subjects", "alice,bob", "comma-separated subject names")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	cams := strings.Split(*cameras, ",")
	subs := strings.Split(*subjects, ",")

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)

	start := time.Now().AddDate(0, 0, -*days).Truncate(24 * time.Hour)
	frame := 0
	total := 0
	for day := 0; day < *days; day++ {
		for _, subject := range subs {
			// Each subject visits a couple of rooms per day around fixed
			// hours, with some jitter so positions and dwell vary.
			for _, hour := range []int{8, 12, 19} {
				camera := cams[rng.Intn(len(cams))]
				visitStart := start.AddDate(0, 0, day).
					Add(time.Duration(hour) * time.Hour).
					Add(time.Duration(rng.Intn(20)) * time.Minute)

				sightings := 3 + rng.Intn(4)
				for i := 0; i < sightings; i++ {
					frame++
					ts := visitStart.Add(time.Duration(i*2) * time.Minute)
					cx := 0.4 + rng.Float64()*0.2
					cy := 0.4 + rng.Float64()*0.2
					batch := vigil.DetectionBatch{
						FrameID:   fmt.Sprintf("frame-%06d", frame),
						Camera:    camera,
						Subject:   subject,
						Timestamp: ts,
						Detections: []vigil.Detection{{
							Class:      vigil.PersonClass,
							Confidence: 0.7 + rng.Float64()*0.3,
							BBox:       [4]float64{cx - 0.05, cy - 0.1, cx + 0.05, cy + 0.1},
						}},
					}
					if err := enc.Encode(batch); err != nil {
						log.Fatalf("failed to write batch: %v", err)
					}
					total++
				}
			}
		}
	}
	log.Printf("wrote %d batches over %d days to %s", total, *days, *output)
}
