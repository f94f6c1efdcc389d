package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/milsabores/identity-service/internal/core/domain"
)

const usersCollection = "users"

// UserDirectory stores users in MongoDB with the user id as _id and a unique
// index on email.
type UserDirectory struct {
	coll *mongo.Collection
}

func NewUserDirectory(db *mongo.Database) *UserDirectory {
	return &UserDirectory{coll: db.Collection(usersCollection)}
}

type mongoUser struct {
	ID                 string     `bson:"_id"`
	DisplayName        string     `bson:"name"`
	Email              string     `bson:"email"`
	PasswordHash       string     `bson:"password_hash"`
	RoleID             int        `bson:"role_id"`
	ExternalIdentityID *string    `bson:"external_identity_id,omitempty"`
	ProfileImage       []byte     `bson:"profile_image,omitempty"`
	BirthDate          *time.Time `bson:"birth_date,omitempty"`
	CreatedAt          time.Time  `bson:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at"`
}

// EnsureIndexes creates the email and external identity indexes. Email
// uniqueness is what arbitrates concurrent registrations.
func (r *UserDirectory) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_email"),
		},
		{
			Keys:    bson.D{{Key: "external_identity_id", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("idx_external_identity"),
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (r *UserDirectory) Save(ctx context.Context, user *domain.User) (*domain.User, error) {
	doc := toMongoUser(user)

	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("save user: %w", err)
	}

	return fromMongoUser(doc), nil
}

func (r *UserDirectory) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserDirectory) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserDirectory) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"email": email}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return n > 0, nil
}

func (r *UserDirectory) FindByExternalIdentityID(ctx context.Context, externalID string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"external_identity_id": externalID})
}

func (r *UserDirectory) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var mu mongoUser
	if err := r.coll.FindOne(ctx, filter).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return fromMongoUser(mu), nil
}

func toMongoUser(u *domain.User) mongoUser {
	doc := mongoUser{
		ID:                 u.ID,
		DisplayName:        u.DisplayName,
		Email:              u.Email,
		PasswordHash:       u.PasswordHash,
		RoleID:             u.RoleID,
		ExternalIdentityID: u.ExternalIdentityID,
		ProfileImage:       u.ProfileImage,
		CreatedAt:          bsonTime(u.CreatedAt),
		UpdatedAt:          bsonTime(u.UpdatedAt),
	}
	if u.BirthDate != nil {
		t := u.BirthDate.Time()
		doc.BirthDate = &t
	}
	return doc
}

func fromMongoUser(mu mongoUser) *domain.User {
	u := &domain.User{
		ID:                 mu.ID,
		DisplayName:        mu.DisplayName,
		Email:              mu.Email,
		PasswordHash:       mu.PasswordHash,
		RoleID:             mu.RoleID,
		ExternalIdentityID: mu.ExternalIdentityID,
		ProfileImage:       mu.ProfileImage,
		CreatedAt:          fromBSONTime(mu.CreatedAt),
		UpdatedAt:          fromBSONTime(mu.UpdatedAt),
	}
	if mu.BirthDate != nil {
		d := domain.DateFromTime(*mu.BirthDate)
		u.BirthDate = &d
	}
	return u
}

// bsonTime truncates t to the millisecond precision of a BSON datetime.
func bsonTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Millisecond)
}

func fromBSONTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}
