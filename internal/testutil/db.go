package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/xxxsen/clinrag/internal/config"
	"github.com/xxxsen/clinrag/internal/db"
	"github.com/xxxsen/clinrag/internal/mongostore"
)

func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	ctx := context.Background()
	conn, err := db.Open(ctx, config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     "clinrag",
		Password: "clinrag_pass",
		DBName:   "clinrag_test",
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(ctx, conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
	}
}

// OpenTestMongo opens a throwaway database that is dropped on cleanup.
func OpenTestMongo(t *testing.T) (*mongo.Database, func()) {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set, skipping mongo test")
	}
	ctx := context.Background()
	client, database, err := mongostore.Open(ctx, config.MongoConfig{
		URI:      uri,
		Database: "clinrag_test_" + uuid.NewString()[:8],
	})
	if err != nil {
		t.Fatalf("open mongo: %v", err)
	}
	return database, func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = database.Drop(cleanupCtx)
		_ = client.Disconnect(cleanupCtx)
	}
}

// UniquePatientID keeps concurrent runs against a shared database apart.
func UniquePatientID() int64 {
	return time.Now().UnixNano() % 1_000_000_000_000
}
