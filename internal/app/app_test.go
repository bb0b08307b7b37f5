package app

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/proctor/internal/config"
	"github.com/example/proctor/internal/identity/identitytest"
	"github.com/example/proctor/internal/provider"
	"github.com/example/proctor/internal/provider/providertest"
	"github.com/example/proctor/internal/report"
)

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.CollectionID = "exam-faces"
	cfg.ProfilesTable = "profiles"
	return cfg
}

func TestNewWiresEnrollAndVerify(t *testing.T) {
	fake := &providertest.Fake{Faces: []provider.FaceDetail{providertest.SingleFace()}}
	a := New(testConfig(), fake, identitytest.NewMemoryStore(), zap.NewNop())
	defer a.Close()

	ctx := context.Background()
	token, err := a.Enroller.Enroll(ctx, []byte("candidate"), "Alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := a.Orchestrator.Verify(ctx, []byte("candidate"))
	require.NoError(t, err)
	require.Len(t, got, a.Orchestrator.Len())

	rec, ok := got.Find(report.PersonRecognition)
	require.True(t, ok)
	assert.True(t, rec.Success)
	assert.Equal(t, "Alice", rec.Details)

	n, err := testutil.GatherAndCount(a.Registry, "proctor_enrollments_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuildRejectsUnknownBackends(t *testing.T) {
	cfg := testConfig()
	cfg.ProviderBackend = "carrier-pigeon"
	cfg.StoreBackend = config.StoreMongo
	_, err := Build(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unknown provider backend")
}

func TestLoadAWSConfig(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	cfg := testConfig()
	cfg.Region = "eu-west-1"
	cfg.EndpointURL = "http://localhost:4566"

	awsCfg, err := loadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", awsCfg.Region)
	require.NotNil(t, awsCfg.BaseEndpoint)
	assert.Equal(t, "http://localhost:4566", *awsCfg.BaseEndpoint)
	assert.Equal(t, cfg.MaxAttempts, awsCfg.RetryMaxAttempts)
}
