package repo

import (
	"context"
	"errors"
	"time"

	"github.com/tazhibayda/authflow/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

const (
	idxEmail             = "uniq_email"
	idxVerificationToken = "uniq_verification_token"
)

// EnsureUserIndexes creates the unique email index and the token lookups.
// Token fields are $unset once consumed, so sparse indexes only cover pending
// tokens; pending verification codes must be unique because a code alone
// identifies the account it verifies.
func (s *Store) EnsureUserIndexes(ctx context.Context) error {
	_, err := s.colUsers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(idxEmail),
		},
		{
			Keys:    bson.D{{Key: "verification_token", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName(idxVerificationToken),
		},
		{
			Keys:    bson.D{{Key: "reset_password_token", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("reset_password_token"),
		},
	})
	return err
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) (err error) {
	sp, ctx := span(ctx, "users.insert")
	defer func() { finish(sp, err) }()

	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	res, err := s.colUsers.InsertOne(ctx, u)
	if idx, dup := DupIndex(err); dup {
		if idx == idxVerificationToken {
			return ErrCodeTaken
		}
		return ErrEmailExists
	}
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		u.ID = oid
	}
	return nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (u *domain.User, err error) {
	sp, ctx := span(ctx, "users.find_by_email")
	defer func() { finish(sp, err) }()
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *Store) FindUserByID(ctx context.Context, id primitive.ObjectID) (u *domain.User, err error) {
	sp, ctx := span(ctx, "users.find_by_id", tracer.Tag("user_id", id.Hex()))
	defer func() { finish(sp, err) }()
	return s.findOne(ctx, bson.M{"_id": id})
}

// ConsumeVerificationToken marks the owner of a live code verified and
// removes the code in one step; a second call with the same code finds nothing.
func (s *Store) ConsumeVerificationToken(ctx context.Context, code string, now time.Time) (u *domain.User, err error) {
	sp, ctx := span(ctx, "users.consume_verification")
	defer func() { finish(sp, err) }()

	now = now.UTC()
	return s.findOneAndUpdate(ctx,
		bson.M{"verification_token": code, "verification_token_expires_at": bson.M{"$gt": now}},
		bson.M{
			"$set":   bson.M{"is_verified": true, "updated_at": now},
			"$unset": bson.M{"verification_token": "", "verification_token_expires_at": ""},
		},
	)
}

func (s *Store) SetResetToken(ctx context.Context, id primitive.ObjectID, token string, expiresAt time.Time) (err error) {
	sp, ctx := span(ctx, "users.set_reset_token", tracer.Tag("user_id", id.Hex()))
	defer func() { finish(sp, err) }()

	return s.updateByID(ctx, id, bson.M{"$set": bson.M{
		"reset_password_token":      token,
		"reset_password_expires_at": expiresAt.UTC(),
		"updated_at":                time.Now().UTC(),
	}})
}

// ConsumeResetToken swaps in passwordHash for the owner of a live reset token
// and removes the token.
func (s *Store) ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) (u *domain.User, err error) {
	sp, ctx := span(ctx, "users.consume_reset")
	defer func() { finish(sp, err) }()

	now = now.UTC()
	return s.findOneAndUpdate(ctx,
		bson.M{"reset_password_token": token, "reset_password_expires_at": bson.M{"$gt": now}},
		bson.M{
			"$set":   bson.M{"password_hash": passwordHash, "updated_at": now},
			"$unset": bson.M{"reset_password_token": "", "reset_password_expires_at": ""},
		},
	)
}

func (s *Store) SetLastLogin(ctx context.Context, id primitive.ObjectID, at time.Time) (err error) {
	sp, ctx := span(ctx, "users.set_last_login", tracer.Tag("user_id", id.Hex()))
	defer func() { finish(sp, err) }()

	at = at.UTC()
	return s.updateByID(ctx, id, bson.M{"$set": bson.M{"last_login": at, "updated_at": at}})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var u domain.User
	err := s.colUsers.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*domain.User, error) {
	var u domain.User
	err := s.colUsers.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) updateByID(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	res, err := s.colUsers.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
