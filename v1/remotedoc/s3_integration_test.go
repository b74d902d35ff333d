//go:build integration

package remotedoc

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

// createMinIOContainer sets up and starts a MinIO Docker container for testing
func createMinIOContainer(ctx context.Context) (testcontainers.Container, string, string, error) {
	port, err := getFreePort()
	if err != nil {
		return nil, "", "", fmt.Errorf("could not get free port: %w", err)
	}

	portStr := fmt.Sprintf("%d", port)
	portBindings := nat.PortMap{
		"9000/tcp": []nat.PortBinding{{HostPort: portStr}},
	}

	req := testcontainers.ContainerRequest{
		Image: "minio/minio:RELEASE.2024-01-16T16-07-38Z",
		Cmd:   []string{"server", "/data"},
		Env: map[string]string{
			"MINIO_ACCESS_KEY": "minio_admin",
			"MINIO_SECRET_KEY": "minio_admin",
		},
		ExposedPorts: []string{"9000/tcp"},
		HostConfigModifier: func(cfg *container.HostConfig) {
			cfg.PortBindings = portBindings
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("9000/tcp").WithStartupTimeout(20*time.Second),
			wait.ForHTTP("/minio/health/ready").WithPort("9000/tcp").WithStartupTimeout(20*time.Second),
		),
	}

	containerInstance, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to start MinIO container: %w", err)
	}

	host, err := containerInstance.Host(ctx)
	if err != nil {
		_ = containerInstance.Terminate(ctx)
		return nil, "", "", fmt.Errorf("failed to get host: %w", err)
	}

	return containerInstance, host, portStr, nil
}

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func TestS3Documents(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	containerInstance, host, port, err := createMinIOContainer(ctx)
	require.NoError(t, err)
	defer func() {
		if err := containerInstance.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	s3 := S3Config{
		Endpoint:        net.JoinHostPort(host, port),
		AccessKeyID:     "minio_admin",
		SecretAccessKey: "minio_admin",
		BucketName:      "documents",
	}

	t.Run("missing bucket", func(t *testing.T) {
		_, err := New(ctx, Config{Client: ClientS3, S3: s3})
		assert.ErrorContains(t, err, "does not exist")
	})

	s3.CreateBucket = true
	var docs *Service
	app := fxtest.New(t,
		FXModule,
		fx.Provide(func() Config { return Config{Client: ClientS3, S3: s3} }),
		fx.Populate(&docs),
	)
	app.RequireStart()
	defer app.RequireStop()

	require.IsType(t, &S3Client{}, docs.Client())

	require.NoError(t, docs.UploadDocument(ctx, encode("%PDF-1.7"), "invoices/2024-001.pdf"))
	got, err := docs.DownloadDocument(ctx, "invoices/2024-001.pdf")
	require.NoError(t, err)
	assert.Equal(t, encode("%PDF-1.7"), got)

	require.NoError(t, docs.DeleteDocument(ctx, "invoices/2024-001.pdf"))
	_, err = docs.DownloadDocument(ctx, "invoices/2024-001.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, docs.DeleteDocument(ctx, "invoices/2024-001.pdf"))
}
