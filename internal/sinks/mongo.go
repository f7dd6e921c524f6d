package sinks

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// MongoSink 写入MongoDB集合
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoSink 连接MongoDB并建立查询索引
func NewMongoSink(ctx context.Context, uri, database, collection string) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("连接MongoDB失败 [%s]: %w", utils.RedactDSN(uri), err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB不可用 [%s]: %w", utils.RedactDSN(uri), err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "comercial_id", Value: 1}, {Key: "run_id", Value: 1}},
	})
	if err != nil {
		utils.Logger.Warn().Err(err).Str("collection", collection).Msg("创建索引失败")
	}

	utils.Infof("🗄️  已连接MongoDB: %s/%s", database, collection)
	return &MongoSink{client: client, collection: coll}, nil
}

// Persist 插入一条记录
func (s *MongoSink) Persist(ctx context.Context, r models.ProductRecord) error {
	doc := bson.M{
		"name":                r.Name,
		"price":               r.Price,
		"unit_price":          r.UnitPrice,
		"total_unit_quantity": r.Quantity,
		"unit_type":           r.UnitType,
		"category":            r.Category,
		"sub_category":        r.SubCategory,
		"label_path":          r.LabelPath,
		"comercial_id":        r.SourceID,
		"comercial_name":      r.SourceName,
		"listing_url":         r.ListingURL,
		"run_id":              r.RunID,
		"result_date":         r.ResultDate(),
		"result_time":         r.ResultTime(),
		"captured_at":         r.CapturedAt,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("插入文档失败: %w", err)
	}
	return nil
}

// Close 断开连接
func (s *MongoSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
