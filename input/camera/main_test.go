package camera

import (
	"fmt"
	"log"
	"os"
	"testing"

	"github.com/c360/robobridge/natsclient"
)

var sharedNATS *natsclient.TestClient

func TestMain(m *testing.M) {
	if os.Getenv("INTEGRATION_TESTS") == "" {
		fmt.Println("Skipping camera NATS integration tests. Set INTEGRATION_TESTS=1 to run.")
		os.Exit(m.Run())
	}

	testClient, err := natsclient.NewSharedTestClient()
	if err != nil {
		log.Fatalf("Failed to create shared test client: %v", err)
	}
	sharedNATS = testClient

	exitCode := m.Run()

	testClient.Terminate()
	os.Exit(exitCode)
}

// requireSharedNATS returns the shared NATS server, skipping the test
// when integration infrastructure is not available.
func requireSharedNATS(t *testing.T) *natsclient.TestClient {
	t.Helper()
	if sharedNATS == nil {
		t.Skip("Skipping integration test. Set INTEGRATION_TESTS=1 to run.")
	}
	return sharedNATS
}
