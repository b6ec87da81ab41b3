package main

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/raceline/internal/auth"
	"github.com/ukydev/raceline/internal/db"
	"github.com/ukydev/raceline/internal/handlers"
	"github.com/ukydev/raceline/internal/models"
	"github.com/ukydev/raceline/internal/sim"
	"github.com/ukydev/raceline/internal/track"
	"github.com/ukydev/raceline/internal/viz"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func loadTrack() *track.Track {
	path := os.Getenv("TRACK_FILE")
	if path == "" {
		log.Info("no TRACK_FILE set, using the default circuit")
		return track.DefaultCircuit(1000, 700, 120)
	}
	tr, err := track.Load(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Fatal("failed to load track")
	}
	log.WithFields(log.Fields{
		"path":  path,
		"size":  strconv.Itoa(tr.Width) + "x" + strconv.Itoa(tr.Height),
		"gates": len(tr.Gates),
	}).Info("track loaded")
	return tr
}

func loadProfile() models.Profile {
	path := os.Getenv("PROFILE_FILE")
	if path == "" {
		return models.DefaultProfile()
	}
	p, err := models.LoadProfile(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Fatal("failed to load profile")
	}
	log.WithField("profile", p.Name).Info("profile loaded")
	return p
}

// forwardSnapshots pushes the current episode's snapshots to MQTT. Each new
// episode replaces the world behind the API, so the subscription is
// re-resolved periodically and the stale one released.
func forwardSnapshots(api *handlers.API, publisher *viz.Publisher) {
	for {
		world := api.World()
		if world == nil {
			time.Sleep(time.Second)
			continue
		}
		snapshots, cancel := world.Subscribe()
		for api.World() == world {
			select {
			case snap := <-snapshots:
				if err := publisher.Publish(snap); err != nil {
					log.WithError(err).Warn("mqtt publish failed")
				}
			case <-time.After(time.Second):
			}
		}
		cancel()
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using environment variables")
	}

	log.SetFormatter(&log.JSONFormatter{})
	if level, err := log.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		log.SetLevel(level)
	}

	tr := loadTrack()
	profile := loadProfile()

	authService, err := auth.NewService()
	if err != nil {
		log.WithError(err).Fatal("failed to initialise auth service")
	}

	// Without an attached evolution backend every agent drives the same
	// wall-avoiding reflex. It exercises the full tick pipeline and gives
	// the display layer something to show.
	factory := func(count int, p models.Profile) []sim.Policy {
		policies := make([]sim.Policy, count)
		for i := range policies {
			policies[i] = &sim.ReflexPolicy{Rays: p.EffectiveRayCount()}
		}
		return policies
	}

	api := handlers.NewAPI(authService, tr, profile, factory)
	api.Realtime = getEnvBool("REALTIME", true)

	router := api.Router()
	router.HandleFunc("/ws/simulation", func(w http.ResponseWriter, r *http.Request) {
		world := api.World()
		if world == nil {
			http.Error(w, "No simulation", http.StatusNotFound)
			return
		}
		viz.WebsocketHandler(world)(w, r)
	})

	if brokerURL := os.Getenv("MQTT_BROKER_URL"); brokerURL != "" {
		publisher, err := viz.NewPublisher(brokerURL, getEnv("MQTT_CLIENT_ID", "raceline-server"), getEnv("MQTT_TOPIC", "raceline/snapshots"))
		if err != nil {
			log.WithError(err).Fatal("failed to connect mqtt publisher")
		}
		defer publisher.Close()
		go forwardSnapshots(api, publisher)
	}

	if getEnvBool("MONGO_ENABLED", false) {
		client, err := db.ConnectMongo()
		if err != nil {
			log.WithError(err).Fatal("failed to connect to MongoDB")
		}
		database := getEnv("MONGO_DB", "raceline")
		api.SetTrackStore(&db.TrackCollection{Collection: client.Database(database).Collection("tracks")})
		log.WithField("database", database).Info("connected to MongoDB, track library enabled")
	}

	port := getEnv("PORT", "8080")
	log.WithField("port", port).Info("control API listening")
	log.Fatal(http.ListenAndServe(":"+port, router))
}
