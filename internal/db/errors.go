package db

import (
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

const duplicateKeyCode = 11000

// IsDuplicateKeyError checks if an error from MongoDB is a duplicate key error (code 11000).
func IsDuplicateKeyError(err error) bool {
	return len(duplicateKeyMessages(err)) > 0
}

// IsDuplicateKeyOn reports whether err is a duplicate key violation of the named index.
func IsDuplicateKeyOn(err error, indexName string) bool {
	for _, msg := range duplicateKeyMessages(err) {
		if strings.Contains(msg, "index: "+indexName) {
			return true
		}
	}
	return false
}

func duplicateKeyMessages(err error) []string {
	var msgs []string
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == duplicateKeyCode {
				msgs = append(msgs, e.Message)
			}
		}
	}
	// BulkWriteException can also carry duplicate key errors
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == duplicateKeyCode {
				msgs = append(msgs, e.Message)
			}
		}
	}
	return msgs
}
