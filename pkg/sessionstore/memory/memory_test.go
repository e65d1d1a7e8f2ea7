package memory_test

import (
	"testing"

	"github.com/aussiebroadwan/authkit/pkg/sessionstore"
	"github.com/aussiebroadwan/authkit/pkg/sessionstore/memory"
	"github.com/aussiebroadwan/authkit/pkg/sessionstore/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) sessionstore.Store { return memory.New() })
}
