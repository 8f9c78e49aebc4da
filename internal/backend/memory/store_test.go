package memory

import (
	"testing"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/backend/backendtest"
)

func TestStore(t *testing.T) {
	backendtest.RunStoreSuite(t, func(t *testing.T) backend.Store {
		s := New()
		s.SeedDefaults()
		return s
	})
}
