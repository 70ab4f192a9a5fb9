package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maheshrc27/physiopost/internal/apperror"
	"github.com/maheshrc27/physiopost/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPContentGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in transfer.GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "knee pain", in.Topic)
		_ = json.NewEncoder(w).Encode(transfer.GeneratedContent{Title: "Knees", Content: "Move daily", Hashtags: "#knee"})
	}))
	defer srv.Close()

	gen := NewHTTPContentGenerator(srv.URL, time.Second)
	out, err := gen.Generate(context.Background(), transfer.GenerateRequest{Topic: "knee pain"})
	require.NoError(t, err)
	assert.Equal(t, "Move daily", out.Content)
	assert.False(t, out.Placeholder)
}

func TestHTTPContentGenerator_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPContentGenerator(srv.URL, time.Second).Generate(context.Background(), transfer.GenerateRequest{Topic: "x"})
	assert.Equal(t, apperror.KindExternalService, apperror.KindOf(err))
}

type failingGenerator struct{}

func (failingGenerator) Generate(ctx context.Context, req transfer.GenerateRequest) (*transfer.GeneratedContent, error) {
	return nil, apperror.ExternalService("content generator unreachable", "dial tcp", nil)
}

func TestFallbackGenerator(t *testing.T) {
	for _, primary := range []ContentGenerator{nil, failingGenerator{}} {
		out, err := NewFallbackGenerator(primary).Generate(context.Background(), transfer.GenerateRequest{Topic: "Lower back"})
		require.NoError(t, err)
		assert.True(t, out.Placeholder)
		assert.Equal(t, "Lower back", out.Title)
		assert.Contains(t, out.Hashtags, "#lowerback")
	}

	_, err := NewFallbackGenerator(nil).Generate(context.Background(), transfer.GenerateRequest{Topic: " "})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}
