package dbusapi

import (
	"io"
	"os"
	"testing"

	"github.com/bryanchriswhite/taskstrip/internal/logger"
)

func TestMain(m *testing.M) {
	logger.InitWriter(io.Discard, "disabled", false)
	os.Exit(m.Run())
}
