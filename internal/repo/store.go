package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrEmailExists = errors.New("email already exists")
	// ErrCodeTaken means another pending user holds the same verification code.
	ErrCodeTaken   = errors.New("verification code already pending")
)

type Store struct {
	Client   *mongo.Client
	DB       *mongo.Database
	colUsers *mongo.Collection
}

func NewStore(ctx context.Context, uri, dbname string) (*Store, error) {
	cli, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetRetryWrites(true).
		SetMaxPoolSize(50),
	)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	db := cli.Database(dbname)
	return &Store{Client: cli, DB: db, colUsers: db.Collection("users")}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

// IsDup reports a duplicate key violation (E11000).
func IsDup(err error) bool {
	_, ok := DupIndex(err)
	return ok
}

// DupIndex returns the name of the unique index a duplicate key error
// (E11000) was raised on. ok is false for any other error.
func DupIndex(err error) (index string, ok bool) {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return indexFromMessage(e.Message), true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return indexFromMessage(ce.Message), true
	}
	return "", false
}

// "E11000 duplicate key error collection: db.users index: uniq_email dup key: ..."
func indexFromMessage(msg string) string {
	_, rest, found := strings.Cut(msg, "index: ")
	if !found {
		return ""
	}
	if f := strings.Fields(rest); len(f) > 0 {
		return f[0]
	}
	return ""
}

func span(ctx context.Context, op string, opts ...ddtrace.StartSpanOption) (ddtrace.Span, context.Context) {
	opts = append(opts, tracer.SpanType("mongodb"), tracer.ResourceName(op))
	return tracer.StartSpanFromContext(ctx, "mongo."+op, opts...)
}

func finish(sp ddtrace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		sp.Finish(tracer.WithError(err))
		return
	}
	sp.Finish()
}
