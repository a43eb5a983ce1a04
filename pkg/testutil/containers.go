// Package testutil starts disposable dependencies for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tckafkamod "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SkipWithoutDocker skips integration tests under -short or when APP_SKIP_CONTAINERS is set.
func SkipWithoutDocker(t *testing.T) {
	t.Helper()
	if testing.Short() || os.Getenv("APP_SKIP_CONTAINERS") != "" {
		t.Skip("integration test: needs docker")
	}
}

// StartPostgres runs a Postgres container. The DSN comes without the postgres:// prefix,
// the form database.New expects.
func StartPostgres(t *testing.T) (dsnNoProto string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	const (
		user     = "ledger"
		password = "ledger"
		dbName   = "resilient_ledger"
	)
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     user,
				"POSTGRES_PASSWORD": password,
				"POSTGRES_DB":       dbName,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres test container: %v", err)
	}
	t.Cleanup(func() { terminate(pgC) })

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get postgres host: %v", err)
	}
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("failed to get postgres mapped port: %v", err)
	}
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port.Port(), dbName)
	return strings.TrimPrefix(connStr, "postgres://")
}

// StartRedis runs a Redis container and returns host:port.
func StartRedis(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rc, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start redis test container: %v", err)
	}
	t.Cleanup(func() { terminate(rc) })

	host, err := rc.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get redis host: %v", err)
	}
	mapped, err := rc.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("failed to get redis mapped port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

// StartKafka runs a single-node Kafka and returns its bootstrap address.
func StartKafka(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	kc, err := tckafkamod.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafkamod.WithClusterID("ledger-test"))
	if err != nil {
		t.Fatalf("failed to start kafka test container: %v", err)
	}
	t.Cleanup(func() { terminate(kc) })

	brokers, err := kc.Brokers(ctx)
	if err != nil || len(brokers) == 0 {
		t.Fatalf("failed to get kafka brokers: %v", err)
	}
	return strings.Join(brokers, ",")
}

func terminate(c testcontainers.Container) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = c.Terminate(ctx)
}
