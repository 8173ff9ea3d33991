package chat

import (
	"context"

	"github.com/pkg/errors"
)

// ErrDocumentMissing is returned by a Document that has never been written.
var ErrDocumentMissing = errors.New("session document does not exist")

// Document is the durable medium holding the serialized session collection.
// Write must replace the whole document atomically: a reader observes either
// the previous complete body or the new one.
type Document interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, body []byte) error
	Location() string
}
