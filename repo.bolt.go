package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

// Ensure boltLedgerArchive implements LedgerArchive.
var _ LedgerArchive = (*boltLedgerArchive)(nil)

type boltLedgerArchive struct {
	logger *zap.Logger
	client *bolt.DB
	config *BoltDBConfig
}

// GetBoltDBClient setup the database and the bucket then provides a ready to use client.
func GetBoltDBClient(config *Config) (*bolt.DB, error) {
	db, err := bolt.Open(config.BoltDB.FilePath, 0o600, &bolt.Options{Timeout: config.BoltDB.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open the database, %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, errB := tx.CreateBucketIfNotExists([]byte(config.BoltDB.BucketName)); errB != nil {
			return fmt.Errorf("failed to create %s bucket: %v", config.BoltDB.BucketName, errB)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up bucket: %v", err)
	}
	return db, nil
}

// NewBoltLedgerArchive provides an instance of bolt-based ledger events archive.
func NewBoltLedgerArchive(logger *zap.Logger, boltConfig *BoltDBConfig, client *bolt.DB) LedgerArchive {
	return &boltLedgerArchive{
		logger: logger,
		client: client,
		config: boltConfig,
	}
}

// ledgerKeyTimeLayout keeps a fixed width so that keys sort in time order.
const ledgerKeyTimeLayout = "2006-01-02T15:04:05.000000000Z"

// LedgerEventKey builds the archive key of an event. Keys sort in
// the order the events occurred.
func LedgerEventKey(event LedgerEvent) []byte {
	return []byte(event.OccurredAt.UTC().Format(ledgerKeyTimeLayout) + "|" + event.TransactionID + "|" + event.Type)
}

// Add archives a ledger event. Adding the same event twice keeps a single record.
func (ba *boltLedgerArchive) Add(_ context.Context, event LedgerEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return ba.client.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(ba.config.BucketName)).Put(LedgerEventKey(event), eventBytes)
	})
}

// GetAll retrieves the archived events in the order they occurred.
func (ba *boltLedgerArchive) GetAll(_ context.Context) ([]LedgerEvent, error) {
	tx, err := ba.client.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Create a cursor on the events' bucket.
	c := tx.Bucket([]byte(ba.config.BucketName)).Cursor()

	events := []LedgerEvent{}
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var event LedgerEvent
		if err = json.Unmarshal(v, &event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
