package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		uri     string
		want    any
		wantErr bool
	}{
		{uri: "", want: &FSBackend{}},
		{uri: "file://", want: &FSBackend{}},
		{uri: "memory://", want: &MemoryBackend{}},
		{uri: "sqlite://:memory:", want: &SQLiteBackend{}},
		{uri: "sqlite://", wantErr: true},
		{uri: "s3://bucket/prefix", wantErr: true},
		{uri: "/no/scheme", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			b, err := Open(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer b.Close()
			assert.IsType(t, tt.want, b)
		})
	}
}
