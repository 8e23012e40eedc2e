package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
)

// projectDocument is the shape of a project in MongoDB.
type projectDocument struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty"`
	Name      string               `bson:"name"`
	Owner     primitive.ObjectID   `bson:"owner,omitempty"`
	Users     []primitive.ObjectID `bson:"users"`
	CreatedAt time.Time            `bson:"createdAt"`
}

func (d *projectDocument) toDomain() *domain.Project {
	members := make([]string, 0, len(d.Users))
	for _, u := range d.Users {
		members = append(members, u.Hex())
	}

	p := &domain.Project{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Members:   members,
		CreatedAt: d.CreatedAt,
	}
	if !d.Owner.IsZero() {
		p.OwnerID = d.Owner.Hex()
	}
	return p
}

// MongoProjectStore implements ProjectStore on a MongoDB collection whose
// documents are keyed by ObjectID.
type MongoProjectStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoProjectStore connects to uri and verifies the connection.
func NewMongoProjectStore(ctx context.Context, uri, database, collection string) (*MongoProjectStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoProjectStore{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}, nil
}

// ValidID implements ProjectStore.
func (s *MongoProjectStore) ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

// FindByID retrieves a project by its hex ObjectID.
func (s *MongoProjectStore) FindByID(ctx context.Context, id string) (*domain.Project, error) {
	l := log.Ctx(ctx)

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrProjectNotFound
	}

	var doc projectDocument
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProjectNotFound
		}
		l.Error().Err(err).Str(log.FieldProjectID, id).Msg("failed to find project in mongodb")
		return nil, err
	}
	return doc.toDomain(), nil
}

// Close disconnects the client.
func (s *MongoProjectStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
