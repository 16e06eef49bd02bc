package db

import (
	"context"
	"fmt"
	"time"

	"grain-classification/models"
	"grain-classification/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoOpTimeout = 10 * time.Second

type MongoClient struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoClient(uri string) (*MongoClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("error pinging MongoDB: %w", err)
	}

	dbName := utils.GetEnv("MONGO_DB", "grain-classification")
	return &MongoClient{client: client, db: client.Database(dbName)}, nil
}

func (c *MongoClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()
	return c.client.Disconnect(ctx)
}

func (c *MongoClient) StoreAnalysis(analysis *models.Analysis) error {
	if analysis.ID == "" {
		analysis.ID = utils.GenerateUniqueID()
	}
	if analysis.Timestamp.IsZero() {
		analysis.Timestamp = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	doc := bson.M{
		"_id":       analysis.ID,
		"timestamp": analysis.Timestamp,
		"device_id": analysis.DeviceID,
		"especie":   analysis.Species,
		"confianca": analysis.Confidence,
		"status":    analysis.Status,
		"result":    string(analysis.Result),
	}
	if _, err := c.db.Collection("analyses").InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("error storing analysis: %w", err)
	}
	return nil
}

func (c *MongoClient) RecentAnalyses(limit int) ([]models.Analysis, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := c.db.Collection("analyses").Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying analyses: %w", err)
	}
	defer cursor.Close(ctx)

	var analyses []models.Analysis
	for cursor.Next(ctx) {
		var doc struct {
			ID         string    `bson:"_id"`
			Timestamp  time.Time `bson:"timestamp"`
			DeviceID   string    `bson:"device_id"`
			Species    string    `bson:"especie"`
			Confidence float64   `bson:"confianca"`
			Status     string    `bson:"status"`
			Result     string    `bson:"result"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("error decoding analysis: %w", err)
		}
		analyses = append(analyses, models.Analysis{
			ID:         doc.ID,
			Timestamp:  doc.Timestamp,
			DeviceID:   doc.DeviceID,
			Species:    doc.Species,
			Confidence: doc.Confidence,
			Status:     doc.Status,
			Result:     []byte(doc.Result),
		})
	}
	return analyses, cursor.Err()
}

func (c *MongoClient) TotalAnalyses() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	count, err := c.db.Collection("analyses").CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("error counting analyses: %w", err)
	}
	return int(count), nil
}
