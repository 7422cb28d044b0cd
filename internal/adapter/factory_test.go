package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/uploadkit/internal/adapter/httpadapter"
	"github.com/JonMunkholm/uploadkit/internal/adapter/mockadapter"
)

func TestNew(t *testing.T) {
	a, l, err := New(context.Background(), Config{Kind: KindMock, MockPreset: "fast"}, nil)
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.IsType(t, &mockadapter.Adapter{}, a)

	a, l, err = New(context.Background(), Config{Kind: KindHTTP, Endpoint: "http://localhost/upload", MaxConcurrent: 4}, nil)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, 4, l.MaxConcurrent())
	require.IsType(t, &limited{}, a)
	assert.IsType(t, &httpadapter.Adapter{}, a.(*limited).next)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown kind", Config{Kind: "ftp"}},
		{"http without endpoint", Config{Kind: KindHTTP}},
		{"s3 without bucket", Config{Kind: KindS3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New(context.Background(), tt.cfg, nil)
			assert.Error(t, err)
		})
	}
}
