// Package adapter provides the transport-layer abstraction for exchanging
// encrypted record batches with the sync server.
//
// The primary abstraction is [ServerAdapter], which decouples the sync
// engine from the underlying protocol. The package ships an HTTP/REST
// implementation ([NewHTTPServerAdapter]). Error values defined here are
// mapped from HTTP status codes so callers can use [errors.Is] for
// transport-agnostic error handling.
package adapter

import (
	"context"

	"github.com/MKhiriev/go-browser-sync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/server_adapter_mock.go -package=mock

// ServerAdapter defines transport-agnostic communication with the sync
// server. Implementations are responsible for serialisation, authentication
// header management, and mapping transport-level errors to the sentinel
// values defined in this package.
//
// Records cross this boundary already encrypted; the adapter never sees
// plaintext payloads.
type ServerAdapter interface {
	// SetToken stores the bearer token attached to all subsequent
	// authenticated requests.
	SetToken(token string)

	// Token returns the bearer token currently stored in the adapter, or
	// an empty string if no token has been set yet.
	Token() string

	// Sync pushes the sent batch for one feature and pulls every record
	// changed on the server since the opaque cursor. It returns the
	// received batch and the server timestamp that becomes the next
	// cursor after a successful local commit.
	Sync(ctx context.Context, feature models.Feature, since string, sent []models.SyncableRecord) (received []models.SyncableRecord, serverTimestamp string, err error)
}
