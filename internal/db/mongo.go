package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"receipt-drop/internal/logging"
	"receipt-drop/internal/receipts"
)

const (
	defaultMongoDatabase = "receipts"
	receiptsCollection   = "receipts"
)

// Collection is the subset of *mongo.Collection the store uses.
type Collection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// receiptDocument is the BSON shape of a stored receipt.
type receiptDocument struct {
	ID            string               `bson:"_id"`
	FilePath      string               `bson:"filePath"`
	FileName      string               `bson:"fileName"`
	ObjectKey     string               `bson:"objectKey"`
	OriginalName  string               `bson:"originalName"`
	ContentType   string               `bson:"contentType"`
	SizeBytes     int64                `bson:"sizeBytes"`
	Checksum      string               `bson:"checksum"`
	EmployeeName  string               `bson:"employeeName"`
	Department    string               `bson:"department"`
	PurchaseDate  time.Time            `bson:"purchaseDate"`
	Vendor        string               `bson:"vendor"`
	Amount        primitive.Decimal128 `bson:"amount"`
	PaymentMethod string               `bson:"paymentMethod"`
	Category      string               `bson:"category"`
	ProjectCode   string               `bson:"projectCode,omitempty"`
	Description   string               `bson:"description,omitempty"`
	UploadDate    time.Time            `bson:"uploadDate"`
	Status        string               `bson:"status"`
	CreatedAt     time.Time            `bson:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt"`
}

func toDocument(r *receipts.Receipt) (receiptDocument, error) {
	amount, err := primitive.ParseDecimal128(r.Amount.StringFixed(2))
	if err != nil {
		return receiptDocument{}, fmt.Errorf("convert amount: %w", err)
	}
	return receiptDocument{
		ID:            r.ID,
		FilePath:      r.FilePath,
		FileName:      r.FileName,
		ObjectKey:     r.ObjectKey,
		OriginalName:  r.OriginalName,
		ContentType:   r.ContentType,
		SizeBytes:     r.SizeBytes,
		Checksum:      r.Checksum,
		EmployeeName:  r.EmployeeName,
		Department:    r.Department,
		PurchaseDate:  r.PurchaseDate,
		Vendor:        r.Vendor,
		Amount:        amount,
		PaymentMethod: string(r.PaymentMethod),
		Category:      r.Category,
		ProjectCode:   r.ProjectCode,
		Description:   r.Description,
		UploadDate:    r.UploadDate,
		Status:        string(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

func (d receiptDocument) receipt() (receipts.Receipt, error) {
	amount, err := decimal.NewFromString(d.Amount.String())
	if err != nil {
		return receipts.Receipt{}, fmt.Errorf("convert amount: %w", err)
	}
	return receipts.Receipt{
		ID:            d.ID,
		FilePath:      d.FilePath,
		FileName:      d.FileName,
		ObjectKey:     d.ObjectKey,
		OriginalName:  d.OriginalName,
		ContentType:   d.ContentType,
		SizeBytes:     d.SizeBytes,
		Checksum:      d.Checksum,
		EmployeeName:  d.EmployeeName,
		Department:    d.Department,
		PurchaseDate:  d.PurchaseDate.UTC(),
		Vendor:        d.Vendor,
		Amount:        receipts.NewAmount(amount),
		PaymentMethod: receipts.PaymentMethod(d.PaymentMethod),
		Category:      d.Category,
		ProjectCode:   d.ProjectCode,
		Description:   d.Description,
		UploadDate:    d.UploadDate.UTC(),
		Status:        receipts.Status(d.Status),
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}, nil
}

// MongoStore keeps receipts in a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   Collection
}

// NewMongoStore wraps an existing collection. OpenMongo is the usual
// constructor; this one exists for callers that manage the client.
func NewMongoStore(client *mongo.Client, coll Collection) *MongoStore {
	return &MongoStore{client: client, coll: coll}
}

// OpenMongo connects to uri, pings the primary and ensures the collection
// indexes exist. dbName overrides the database named in the URI.
func OpenMongo(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	log := logging.FromContext(ctx)

	if dbName == "" {
		dbName = mongoDatabaseFromURI(uri)
	}

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(dbName).Collection(receiptsCollection)
	if err := ensureMongoIndexes(ctx, coll); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}

	log.InfoContext(ctx, "Successfully established connection to MongoDB", "database", dbName)
	return NewMongoStore(client, coll), nil
}

func ensureMongoIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "employeeName", Value: "text"},
				{Key: "vendor", Value: "text"},
				{Key: "description", Value: "text"},
				{Key: "category", Value: "text"},
			},
			Options: options.Index().SetName("receipts_text"),
		},
		{
			Keys:    bson.D{{Key: "objectKey", Value: 1}},
			Options: options.Index().SetName("receipts_object_key"),
		},
		{
			Keys:    bson.D{{Key: "uploadDate", Value: -1}},
			Options: options.Index().SetName("receipts_upload_date"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func mongoDatabaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultMongoDatabase
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return defaultMongoDatabase
}

func (s *MongoStore) Backend() string { return "mongodb" }

func (s *MongoStore) Insert(ctx context.Context, r *receipts.Receipt) error {
	doc, err := toDocument(r)
	if err != nil {
		return err
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return mongoError("insert receipt", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*receipts.Receipt, error) {
	var doc receiptDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, receipts.ErrNotFound
	}
	if err != nil {
		return nil, mongoError("find receipt", err)
	}
	r, err := doc.receipt()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *MongoStore) List(ctx context.Context, q receipts.ListQuery) ([]receipts.Receipt, error) {
	filter := bson.M{}
	if q.Status != "" {
		filter["status"] = string(q.Status)
	}
	if text := strings.TrimSpace(q.Text); text != "" {
		filter["$text"] = bson.M{"$search": text}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "uploadDate", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(q.EffectiveLimit()))

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, mongoError("list receipts", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	out := make([]receipts.Receipt, 0)
	for cur.Next(ctx) {
		var doc receiptDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode receipt: %w", err)
		}
		r, err := doc.receipt()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := cur.Err(); err != nil {
		return nil, mongoError("list receipts", err)
	}
	return out, nil
}

func (s *MongoStore) HasObject(ctx context.Context, key string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"objectKey": key}, options.Count().SetLimit(1))
	if err != nil {
		return false, mongoError("count receipts", err)
	}
	return n > 0, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return errors.New("mongodb client not connected")
	}
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return &receipts.ConnectivityError{Err: err}
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// mongoError marks network failures and timeouts as connectivity errors
// so they surface as 503 instead of 500.
func mongoError(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return &receipts.ConnectivityError{Err: wrapped}
	}
	return wrapped
}
