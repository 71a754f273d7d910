package service

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Database checks connectivity to a MongoDB deployment by pinging it.
// Identity is the service name alone; the URI is connection detail, not
// identity, so rotating credentials doesn't create a duplicate service.
type Database struct {
	Name     string
	URI      string
	category string
	timeout  time.Duration
}

// NewDatabase constructs a Database probe with the default 5s timeout.
func NewDatabase(name, uri string, category string) *Database {
	if category == "" {
		category = "infra"
	}
	return &Database{
		Name:     name,
		URI:      uri,
		category: category,
		timeout:  5 * time.Second,
	}
}

func (d *Database) Kind() Kind       { return KindDatabase }
func (d *Database) Category() string { return d.category }
func (d *Database) Key() string      { return d.Name }

func (d *Database) Equal(other Service) bool {
	o, ok := other.(*Database)
	return ok && d.Name == o.Name
}

func (d *Database) String() string {
	return fmt.Sprintf("name=%s", d.Name)
}

func (d *Database) Check(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(d.URI))
	if err != nil {
		return Result{Status: FAIL, Extra: map[string]any{"exception": err.Error()}}
	}
	defer func() { _ = client.Disconnect(ctx) }()

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return Result{Status: FAIL, Extra: map[string]any{"exception": err.Error()}}
	}

	return Result{Status: OK}
}
