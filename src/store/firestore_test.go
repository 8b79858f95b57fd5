package store

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// Runs against the Firestore emulator only: FIRESTORE_EMULATOR_HOST=localhost:8080.
func TestFirestoreStore(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	suite.Run(t, &StoreSuite{newStore: func() Store {
		client, err := firestore.NewClient(context.Background(), "raffles-test")
		require.NoError(t, err)
		return NewFirestoreStore(client)
	}})
}
