// Package storage provides the persistent prediction log for the churn
// service. It uses BoltDB as the underlying storage engine.
//
// Predictions are keyed by zero-padded timestamp followed by their ID, so a
// cursor walks them in time order and range queries are a single Seek.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"churn-service/internal/common"
	"churn-service/internal/inference"

	"go.etcd.io/bbolt"
)

const predictionsBucket = "predictions"

// Store persists predictions using BoltDB.
type Store struct {
	db *bbolt.DB
}

// Summary aggregates the stored predictions.
type Summary struct {
	Total           int     `json:"total"`
	Churn           int     `json:"churn"`
	ChurnRate       float64 `json:"churn_rate"`
	MeanProbability float64 `json:"mean_probability"`
}

// New opens (or creates) the prediction log under dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, common.DefaultRecordsDBName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save appends a prediction to the log. It implements inference.Sink.
func (s *Store) Save(ctx context.Context, p inference.Prediction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ID == "" {
		return fmt.Errorf("prediction has no id")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		return b.Put(predictionKey(p.Timestamp, p.ID), data)
	})
}

// Recent returns up to n predictions, newest first.
func (s *Store) Recent(n int) ([]inference.Prediction, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]inference.Prediction, 0, n)

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var p inference.Prediction
			if err := json.Unmarshal(v, &p); err != nil {
				continue // Skip malformed records
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// Range returns the predictions made in [start, end], oldest first.
func (s *Store) Range(start, end time.Time) ([]inference.Prediction, error) {
	var out []inference.Prediction

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()
		startKey := timePrefix(start)
		endKey := timePrefix(end.Add(time.Nanosecond))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) < 0; k, v = c.Next() {
			var p inference.Prediction
			if err := json.Unmarshal(v, &p); err != nil {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// Count returns the number of stored predictions.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(predictionsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

// Summarize aggregates every stored prediction.
func (s *Store) Summarize() (Summary, error) {
	var sum Summary
	var total float64

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(predictionsBucket)).ForEach(func(_, v []byte) error {
			var p inference.Prediction
			if err := json.Unmarshal(v, &p); err != nil {
				return nil
			}
			sum.Total++
			sum.Churn += p.Label
			total += p.Probability
			return nil
		})
	})
	if err != nil {
		return Summary{}, err
	}
	if sum.Total > 0 {
		sum.ChurnRate = float64(sum.Churn) / float64(sum.Total)
		sum.MeanProbability = total / float64(sum.Total)
	}
	return sum, nil
}

func predictionKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", ts.UnixNano(), id))
}

// timePrefix clamps times before the epoch, whose UnixNano is negative or
// out of range, to the first key.
func timePrefix(ts time.Time) []byte {
	if ts.Before(time.Unix(0, 0)) {
		return []byte(fmt.Sprintf("%020d", 0))
	}
	return []byte(fmt.Sprintf("%020d", ts.UnixNano()))
}
