package tests

import (
	"os"
	"testing"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/user"
	testutil "github.com/quizzq/backend/tests"
)

func TestMain(m *testing.M) {
	logger := testutil.NewStdLogger("TEST : ")
	core.ParseEmailTemplates(logger)
	user.LoadCommonPasswords(logger)

	os.Exit(m.Run())
}
