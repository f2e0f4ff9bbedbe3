package jobs

import (
	"os"
	"testing"

	"github.com/estatedesk/ledger-api/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Setup("test")
	os.Exit(m.Run())
}
