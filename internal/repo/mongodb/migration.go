package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger"
)

const migrationCollection = "migrations"

// Migration statuses.
const (
	MigrationRunning   = "running"
	MigrationCompleted = "completed"
	MigrationFailed    = "failed"
)

// MigrationStatus tracks the status of database migrations
type MigrationStatus struct {
	Name        string           `bson:"name" json:"name"`
	Status      string           `bson:"status" json:"status"`
	StartedAt   *time.Time       `bson:"started_at" json:"started_at"`
	CompletedAt *time.Time       `bson:"completed_at" json:"completed_at"`
	Result      *MigrationResult `bson:"result,omitempty" json:"result,omitempty"`
	CreatedAt   time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `bson:"updated_at" json:"updated_at"`
}

// MigrationResult contains the results of a migration
type MigrationResult struct {
	RecordsUpdated int    `bson:"records_updated" json:"records_updated"`
	Error          string `bson:"error,omitempty" json:"error,omitempty"`
	Duration       string `bson:"duration" json:"duration"`
}

// Migration is applied once per database; completed ones are skipped.
type Migration struct {
	Name string
	Run  func(ctx context.Context, db *DB) (int, error)
}

// Migrations prepares the collections used by the realtime node store.
var Migrations = []Migration{
	{
		Name: "realtime_nodes_updated_at_index",
		Run: func(ctx context.Context, db *DB) (int, error) {
			_, err := db.Database.Collection(NodeCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
				Keys:    bson.D{{Key: "updated_at", Value: -1}},
				Options: options.Index().SetName("updated_at_desc"),
			})
			return 0, err
		},
	},
	{
		Name: "migrations_name_unique_index",
		Run: func(ctx context.Context, db *DB) (int, error) {
			_, err := db.Database.Collection(migrationCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetName("name_unique").SetUnique(true),
			})
			return 0, err
		},
	},
}

type Migrator struct {
	db         *DB
	migrations []Migration
	log        *logger.Logger
}

func NewMigrator(db *DB, migrations ...Migration) *Migrator {
	if len(migrations) == 0 {
		migrations = Migrations
	}
	return &Migrator{db: db, migrations: migrations, log: logger.MustNamed("migration")}
}

// Run applies pending migrations in order and stops at the first failure.
func (m *Migrator) Run(ctx context.Context) error {
	for _, mig := range m.migrations {
		status, err := m.GetMigrationStatus(ctx, mig.Name)
		if err != nil {
			return err
		}
		if status != nil && status.Status == MigrationCompleted {
			continue
		}

		if err := m.SetMigrationStatus(ctx, mig.Name, MigrationRunning, nil); err != nil {
			return err
		}
		start := time.Now()
		n, runErr := mig.Run(ctx, m.db)
		result := &MigrationResult{RecordsUpdated: n, Duration: time.Since(start).String()}
		if runErr != nil {
			result.Error = runErr.Error()
			if err := m.SetMigrationStatus(ctx, mig.Name, MigrationFailed, result); err != nil {
				m.log.Errorw("failed to record migration failure", "migration", mig.Name, "error", err)
			}
			return fmt.Errorf("migration %s: %w", mig.Name, runErr)
		}
		if err := m.SetMigrationStatus(ctx, mig.Name, MigrationCompleted, result); err != nil {
			return err
		}
		m.log.Infow("migration completed", "migration", mig.Name, "duration", result.Duration)
	}
	return nil
}

// GetMigrationStatus returns nil when the migration never ran.
func (m *Migrator) GetMigrationStatus(ctx context.Context, migrationName string) (*MigrationStatus, error) {
	collection := m.db.Database.Collection(migrationCollection)

	var status MigrationStatus
	err := collection.FindOne(ctx, bson.M{"name": migrationName}).Decode(&status)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get migration status: %w", err)
	}

	return &status, nil
}

func (m *Migrator) SetMigrationStatus(ctx context.Context, migrationName string, status string, result *MigrationResult) error {
	collection := m.db.Database.Collection(migrationCollection)

	now := time.Now()
	set := bson.M{
		"name":       migrationName,
		"status":     status,
		"updated_at": now,
	}
	switch status {
	case MigrationRunning:
		set["started_at"] = now
	case MigrationCompleted, MigrationFailed:
		set["completed_at"] = now
		if result != nil {
			set["result"] = result
		}
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := collection.UpdateOne(ctx, bson.M{"name": migrationName}, update, opts); err != nil {
		return fmt.Errorf("failed to set migration status: %w", err)
	}

	return nil
}
