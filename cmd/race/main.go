// Command race runs a headless race on a track and prints the standings.
// With -store the result is persisted to MongoDB.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/raceline/internal/db"
	"github.com/ukydev/raceline/internal/models"
	"github.com/ukydev/raceline/internal/race"
	"github.com/ukydev/raceline/internal/sim"
	"github.com/ukydev/raceline/internal/track"
)

func main() {
	trackFile := flag.String("track", "", "track file (default: built-in circuit)")
	laps := flag.Int("laps", 3, "laps to finish")
	racers := flag.Int("racers", 4, "number of entrants")
	realtime := flag.Bool("realtime", false, "pace the race at 60 ticks/sec")
	store := flag.Bool("store", false, "persist the result to MongoDB")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	tr := track.DefaultCircuit(1000, 700, 120)
	trackName := "default-circuit"
	if *trackFile != "" {
		loaded, err := track.Load(*trackFile)
		if err != nil {
			log.WithError(err).Fatal("failed to load track")
		}
		tr = loaded
		trackName = *trackFile
	}

	profile := models.DefaultProfile()
	entrants := make([]race.Racer, *racers)
	for i := range entrants {
		// Distinct throttle biases keep the reflex field from finishing in
		// lockstep.
		throttle := 1.0 - 0.1*float64(i)
		entrants[i] = race.Racer{
			Name:    fmt.Sprintf("reflex-%d", i+1),
			Profile: profile,
			Policy:  &sim.ReflexPolicy{Rays: profile.EffectiveRayCount(), Throttle: throttle},
		}
	}

	manager, err := race.NewManager(tr, entrants, *laps)
	if err != nil {
		log.WithError(err).Fatal("failed to set up race")
	}
	manager.Realtime = *realtime
	manager.Start()
	manager.Wait()

	snap := manager.Snapshot()
	fmt.Printf("race over after %d ticks (%.1fs simulated)\n", snap.Tick, float64(snap.Tick)*sim.DT)
	for pos, s := range snap.Standings {
		switch {
		case s.Finished:
			fmt.Printf("%2d. %-12s %s  lap %d  %.2fs\n", pos+1, s.Name, s.Color, s.Lap, s.TimeSeconds)
		case s.DNF:
			fmt.Printf("%2d. %-12s %s  DNF (checkpoints %d)\n", pos+1, s.Name, s.Color, s.Checkpoints)
		default:
			fmt.Printf("%2d. %-12s %s  checkpoints %d\n", pos+1, s.Name, s.Color, s.Checkpoints)
		}
	}

	if *store {
		client, err := db.ConnectMongo()
		if err != nil {
			log.WithError(err).Fatal("failed to connect to MongoDB")
		}
		defer client.Disconnect(context.Background())

		results := db.ResultCollection{Collection: client.Database("raceline").Collection("results")}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = results.InsertResult(ctx, db.RaceResult{
			TrackName: trackName,
			Laps:      *laps,
			Ticks:     snap.Tick,
			Standings: snap.Standings,
		})
		if err != nil {
			log.WithError(err).Fatal("failed to store race result")
		}
		log.Info("race result stored")
	}
}
