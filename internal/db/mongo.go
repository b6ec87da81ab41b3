// Package db persists track documents and race results in MongoDB. The
// simulation core never touches it; it backs the control API and the race
// CLI.
package db

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ukydev/raceline/internal/models"
	"github.com/ukydev/raceline/internal/track"
)

// ConnectMongo connects using the MONGO_URI environment variable.
func ConnectMongo() (*mongo.Client, error) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// TrackCollection wraps a MongoDB collection of track documents.
type TrackCollection struct {
	Collection *mongo.Collection
}

// InsertTrack stores a track document, replacing any document of the same
// name.
func (c *TrackCollection) InsertTrack(ctx context.Context, doc track.Document) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	opts := options.Replace().SetUpsert(true)
	_, err := c.Collection.ReplaceOne(ctx, bson.M{"name": doc.Name}, doc, opts)
	return err
}

// FindTrackByName retrieves a track document by its name.
func (c *TrackCollection) FindTrackByName(ctx context.Context, name string) (*track.Document, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	var doc track.Document
	err := c.Collection.FindOne(ctx, bson.M{"name": name}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("track not found")
		}
		return nil, err
	}
	return &doc, nil
}

// ListTrackNames returns the names of all stored tracks.
func (c *TrackCollection) ListTrackNames(ctx context.Context) ([]string, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	cursor, err := c.Collection.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"name": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []struct {
		Name string `bson:"name"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Name != "" {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

// DeleteAllTracks removes every stored track. Used by tests.
func (c *TrackCollection) DeleteAllTracks(ctx context.Context) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := c.Collection.DeleteMany(ctx, bson.M{})
	return err
}

// RaceResult is a finished race's outcome.
type RaceResult struct {
	TrackName string            `bson:"track_name" json:"track_name"`
	Laps      int               `bson:"laps" json:"laps"`
	Ticks     int               `bson:"ticks" json:"ticks"`
	Standings []models.Standing `bson:"standings" json:"standings"`
	CreatedAt time.Time         `bson:"created_at" json:"created_at"`
}

// ResultCollection wraps a MongoDB collection of race results.
type ResultCollection struct {
	Collection *mongo.Collection
}

// InsertResult stores one race result.
func (c *ResultCollection) InsertResult(ctx context.Context, result RaceResult) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	_, err := c.Collection.InsertOne(ctx, result)
	return err
}

// FindResults queries race results, most recent first.
func (c *ResultCollection) FindResults(ctx context.Context, trackName string, limit int64) ([]RaceResult, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	filter := bson.M{}
	if trackName != "" {
		filter["track_name"] = trackName
	}
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cursor, err := c.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []RaceResult
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}
