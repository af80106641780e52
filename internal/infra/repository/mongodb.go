package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/OptimadeHarvester/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository stores harvested structures, one document per provider record.
type MongoRepository struct {
	db         *mongo.Database
	collection *mongo.Collection
}

var _ domain.Repository = (*MongoRepository)(nil)

func NewMongoRepository(client *mongo.Client, dbName, collectionName string) (*MongoRepository, error) {
	db := client.Database(dbName)
	repo := &MongoRepository{
		db:         db,
		collection: db.Collection(collectionName),
	}

	if err := repo.createIndexes(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return repo, nil
}

func (r *MongoRepository) createIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "provider", Value: 1},
				{Key: "fetched_at", Value: -1},
			},
			Options: options.Index().SetName("provider_fetched_at_idx"),
		},
		{
			Keys: bson.D{
				{Key: "chemical_formula_reduced", Value: 1},
			},
			Options: options.Index().SetName("formula_reduced_idx"),
		},
		{
			Keys: bson.D{
				{Key: "provider", Value: 1},
				{Key: "external_id", Value: 1},
			},
			Options: options.Index().SetName("provider_external_id_idx"),
		},
	}

	opts := options.CreateIndexes().SetMaxTime(10 * time.Second)
	_, err := r.collection.Indexes().CreateMany(ctx, models, opts)
	return err
}

func (r *MongoRepository) Upsert(ctx context.Context, structure *domain.Structure) error {
	filter := bson.M{"_id": structure.ID}
	update := bson.M{"$set": structure}
	opts := options.Update().SetUpsert(true)

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert structure: %w", err)
	}
	return nil
}

func (r *MongoRepository) BulkUpsert(ctx context.Context, structures []domain.Structure) error {
	if len(structures) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(structures))
	for _, s := range structures {
		filter := bson.M{"_id": s.ID}
		update := bson.M{"$set": s}
		models = append(models, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true))
	}

	opts := options.BulkWrite().SetOrdered(false)
	_, err := r.collection.BulkWrite(ctx, models, opts)
	if err != nil {
		return fmt.Errorf("failed to bulk upsert structures: %w", err)
	}
	return nil
}

// GetLastFetched returns the most recently fetched structure of provider.
func (r *MongoRepository) GetLastFetched(ctx context.Context, provider string) (*domain.Structure, error) {
	filter := bson.M{"provider": provider}
	opts := options.FindOne().SetSort(bson.D{{Key: "fetched_at", Value: -1}})

	var s domain.Structure
	err := r.collection.FindOne(ctx, filter, opts).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("no structures from %s: %w", provider, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find last fetched structure: %w", err)
	}
	return &s, nil
}

func (r *MongoRepository) GetContentHashes(ctx context.Context, ids []string) (map[string]string, error) {
	filter := bson.M{"_id": bson.M{"$in": ids}}
	opts := options.Find()
	opts.SetProjection(bson.M{"_id": 1, "content_hash": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			slog.Warn("Failed to close cursor", "error", err)
		}
	}()

	results := make(map[string]string)
	for cursor.Next(ctx) {
		var doc struct {
			ID          string `bson:"_id"`
			ContentHash string `bson:"content_hash"`
		}
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		results[doc.ID] = doc.ContentHash
	}
	return results, cursor.Err()
}

// CountByProvider returns the number of stored structures of provider.
func (r *MongoRepository) CountByProvider(ctx context.Context, provider string) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"provider": provider})
	if err != nil {
		return 0, fmt.Errorf("failed to count structures: %w", err)
	}
	return n, nil
}
