package neo4jstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testPassword = "ikg-test-password"

// TestOption configures NewTestStore
type TestOption func(*testConfig)

type testConfig struct {
	image        string
	startTimeout time.Duration
}

// WithImage overrides the neo4j image
func WithImage(image string) TestOption {
	return func(cfg *testConfig) {
		cfg.image = image
	}
}

// NewTestStore starts a neo4j container and returns a store with the
// constraints set up, in the test environment. The container is terminated
// on test cleanup.
func NewTestStore(t testing.TB, opts ...TestOption) *Store {
	t.Helper()

	cfg := &testConfig{
		image:        "neo4j:5.26-community",
		startTimeout: 90 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{"7687/tcp", "7474/tcp"},
		Env: map[string]string{
			"NEO4J_AUTH": "neo4j/" + testPassword,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("7687/tcp"),
			wait.ForHTTP("/").WithPort("7474/tcp").WithStartupTimeout(cfg.startTimeout),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start neo4j container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "7687")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}

	store, err := New(ctx, Config{
		URI:      fmt.Sprintf("bolt://%s:%s", host, port.Port()),
		User:     "neo4j",
		Password: testPassword,
		Edition:  "community",
		Env:      "test",
	}, nil)
	if err != nil {
		t.Fatalf("Failed to connect to neo4j: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	if err := store.Global().Setup(ctx); err != nil {
		t.Fatalf("Failed to set up constraints: %v", err)
	}
	return store
}
