package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObjectKeyLayout(t *testing.T) {
	require.Equal(t, "harvested/src-1/guid-9", objectKey("src-1", "guid-9"))
}

func TestMemoryArchiveCopiesPayload(t *testing.T) {
	a := NewMemoryArchive()
	payload := []byte("<record/>")
	require.NoError(t, a.Store(context.Background(), "src", "g", payload))

	payload[0] = 'X'
	require.Equal(t, []byte("<record/>"), a.Objects["harvested/src/g"])
}
