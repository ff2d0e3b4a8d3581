package data

import (
	"context"
	"errors"
	"time"

	"github.com/chatsocket/chatsocket/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrUserExists is returned when registration collides with an existing email.
var ErrUserExists = errors.New("user already exists")

// ErrUserNotFound is returned when no user matches the query.
var ErrUserNotFound = errors.New("user not found")

// UsersStore performs user DB operations.
type UsersStore struct {
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// CreateUser inserts a new user document. The password hash may be empty
// for identities provisioned without a credential.
func (u *UsersStore) CreateUser(ctx context.Context, email, name, passwordHash, profileImage string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		Email:        normalize.Email(email),
		Name:         name,
		PasswordHash: passwordHash,
		ProfileImage: profileImage,
		IsOnline:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result, err := u.coll.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	user.ID = result.InsertedID.(bson.ObjectID)
	return user, nil
}

// GetUserByEmail finds a user by normalized email.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UserExists checks if a user exists by email.
func (u *UsersStore) UserExists(ctx context.Context, email string) (bool, error) {
	count, err := u.coll.CountDocuments(ctx, bson.M{"email": normalize.Email(email)})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SetOnlineStatus updates a user's presence bookkeeping fields. The
// document is upserted so an identity that connected before ever being
// written still gets a record. socketID is cleared when going offline.
func (u *UsersStore) SetOnlineStatus(ctx context.Context, email string, online bool, socketID string) error {
	set := bson.M{
		"is_online": online,
		"last_seen": time.Now().UTC(),
	}
	if socketID != "" {
		set["socket_id"] = socketID
	} else if !online {
		set["socket_id"] = ""
	}

	_, err := u.coll.UpdateOne(ctx,
		bson.M{"email": normalize.Email(email)},
		bson.M{"$set": set},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

// SearchUsers returns up to limit users whose email or name matches the
// query (case-insensitive substring), excluding the requesting user.
func (u *UsersStore) SearchUsers(ctx context.Context, requester, query string, limit int64) ([]*User, error) {
	if limit <= 0 {
		limit = 10
	}

	filter := bson.M{
		"$and": bson.A{
			bson.M{"email": bson.M{"$ne": normalize.Email(requester)}},
			bson.M{"$or": bson.A{
				bson.M{"email": bson.M{"$regex": query, "$options": "i"}},
				bson.M{"name": bson.M{"$regex": query, "$options": "i"}},
			}},
		},
	}

	cursor, err := u.coll.Find(ctx, filter, options.Find().SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []*User
	if err = cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}
