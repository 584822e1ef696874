package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const archiveCollection = "match_archive"

// OpenMongo connects and pings the server.
func OpenMongo(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, client.Database(database), nil
}

// ArchivedMatch is the document stored for every finished match.
type ArchivedMatch struct {
	ID        string       `bson:"_id"`
	Player1   string       `bson:"player1,omitempty"`
	Player2   string       `bson:"player2,omitempty"`
	VsAI      bool         `bson:"vs_ai"`
	Winner    int          `bson:"winner"`
	Outcome   string       `bson:"outcome"`
	Board     [][]int      `bson:"board"`
	Moves     []MoveRecord `bson:"moves"`
	StartedAt time.Time    `bson:"started_at"`
	EndedAt   time.Time    `bson:"ended_at"`
}

// MongoArchive stores one document per finished match. Other events are
// ignored.
type MongoArchive struct {
	coll *mongo.Collection
}

func NewMongoArchive(database *mongo.Database) *MongoArchive {
	return &MongoArchive{coll: database.Collection(archiveCollection)}
}

func (a *MongoArchive) Name() string { return "mongo" }

func (a *MongoArchive) Write(ctx context.Context, ev Event) error {
	e, ok := ev.(MatchEvent)
	if !ok || e.Phase != MatchEnded {
		return nil
	}
	doc := ArchivedMatch{
		ID:        e.MatchID,
		Player1:   e.Player1,
		Player2:   e.Player2,
		VsAI:      e.Player1 == "" || e.Player2 == "",
		Winner:    e.Winner,
		Outcome:   string(e.Outcome),
		Board:     e.Board,
		Moves:     e.Moves,
		StartedAt: e.StartedAt,
		EndedAt:   e.At,
	}
	if _, err := a.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("archive match %s: %w", e.MatchID, err)
	}
	return nil
}

// History returns the most recent archived matches involving username.
func (a *MongoArchive) History(ctx context.Context, username string, limit int64) ([]ArchivedMatch, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"player1": username},
		bson.M{"player2": username},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "ended_at", Value: -1}}).SetLimit(limit)

	cur, err := a.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var out []ArchivedMatch
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
