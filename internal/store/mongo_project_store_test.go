package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMongoProjectStoreValidID(t *testing.T) {
	s := &MongoProjectStore{}

	assert.True(t, s.ValidID("64b7f0c2a1e4d3b2c1a09f8e"))
	assert.False(t, s.ValidID("proj-42"))
	assert.False(t, s.ValidID(""))
	assert.False(t, s.ValidID("64b7f0c2a1e4d3b2c1a09f8"))
}

func TestProjectDocumentToDomain(t *testing.T) {
	id := primitive.NewObjectID()
	u1, u2 := primitive.NewObjectID(), primitive.NewObjectID()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	p := (&projectDocument{ID: id, Name: "doc", Users: []primitive.ObjectID{u1, u2}, CreatedAt: created}).toDomain()

	assert.Equal(t, id.Hex(), p.ID)
	assert.Equal(t, []string{u1.Hex(), u2.Hex()}, p.Members)
	assert.Empty(t, p.OwnerID)
	assert.Equal(t, created, p.CreatedAt)
}
