// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package integration gates integration tests and provides the external
// services they need.
//
// Tests that need Postgres call Postgres. It returns STEPFLOW_TEST_POSTGRES_URL
// when set, otherwise it starts a disposable container with
// testcontainers-go. The test is skipped in -short mode or when no
// container runtime is available.
package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresURLEnv names the variable holding an existing Postgres database
// for tests.
const PostgresURLEnv = "STEPFLOW_TEST_POSTGRES_URL"

// containerStartTimeout bounds image pull and startup.
const containerStartTimeout = 2 * time.Minute

// SkipShort skips the test in -short mode.
func SkipShort(t testing.TB, what string) {
	t.Helper()
	if testing.Short() {
		t.Skipf("skipping %s in short mode", what)
	}
}

// SkipWithoutEnv skips the test if the specified environment variable is not set.
func SkipWithoutEnv(t testing.TB, envVar string) string {
	t.Helper()
	value := os.Getenv(envVar)
	if value == "" {
		t.Skipf("Skipping test: %s not set", envVar)
	}
	return value
}

// Postgres returns a connection string for an empty-enough Postgres
// database. Containers are terminated when the test ends.
func Postgres(t testing.TB) string {
	t.Helper()
	SkipShort(t, "postgres integration test")

	if url := os.Getenv(PostgresURLEnv); url != "" {
		return url
	}

	ctx, cancel := context.WithTimeout(context.Background(), containerStartTimeout)
	defer cancel()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("stepflow"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	return url
}
