package scopelog_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dianlight/scopelog"
	"github.com/stretchr/testify/suite"
	"gitlab.com/tozd/go/errors"
)

type HandlerSuite struct {
	suite.Suite
	sink  *lineSink
	exits *exitRecorder
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (suite *HandlerSuite) SetupTest() {
	suite.sink = &lineSink{}
	suite.exits = &exitRecorder{}
}

func (suite *HandlerSuite) newLogger(cfg scopelog.Config) *scopelog.Logger {
	l := scopelog.New(
		scopelog.WithConfig(cfg),
		scopelog.WithSink(suite.sink.Write, nil),
		scopelog.WithExitFunc(suite.exits.Exit),
	)
	suite.T().Cleanup(func() { _ = l.Close() })
	return l
}

func (suite *HandlerSuite) plainConfig() scopelog.Config {
	cfg := scopelog.DefaultConfig()
	cfg.Decorations = scopelog.ShowLevel | scopelog.ShowPath
	return cfg
}

func (suite *HandlerSuite) TestRecordsGoThroughEmitter() {
	log := suite.newLogger(suite.plainConfig()).Slog()
	line := here()
	log.Info("hello", "user", "bob", "attempt", 2)

	suite.Equal([]string{fmt.Sprintf("INFO      | handler_test.go:%d | hello user=bob attempt=2\n", line)}, suite.sink.Lines())
}

func (suite *HandlerSuite) TestLevelFiltering() {
	log := suite.newLogger(suite.plainConfig()).Slog()
	log.Debug("hidden")
	suite.Empty(suite.sink.Lines())
	suite.False(log.Enabled(context.Background(), scopelog.LevelDebug))
	suite.True(log.Enabled(context.Background(), scopelog.LevelNotice))

	log.Log(context.Background(), scopelog.LevelNotice, "custom level")
	suite.Require().Len(suite.sink.Lines(), 1)
	suite.True(strings.HasPrefix(suite.sink.Lines()[0], "NOTICE    | "))
}

func (suite *HandlerSuite) TestGroupsAndAttrs() {
	log := suite.newLogger(suite.plainConfig()).Slog()
	log.With("svc", "api").WithGroup("req").Info("served", "id", 7, slog.Group("peer", "port", 80))

	lines := suite.sink.Lines()
	suite.Require().Len(lines, 1)
	suite.Contains(lines[0], "| served svc=api req.id=7 req.peer.port=80\n")
}

func (suite *HandlerSuite) TestQuotesValuesWithSpaces() {
	log := suite.newLogger(suite.plainConfig()).Slog()
	log.Info("m", "note", "two words")
	suite.Contains(suite.sink.Lines()[0], `note="two words"`)
}

func (suite *HandlerSuite) TestSensitiveAttributesAreMasked() {
	cfg := suite.plainConfig()
	cfg.HideSensitiveData = true
	log := suite.newLogger(cfg).Slog()
	log.Info("login", "user", "bob", "password", "hunter2", "api_key", "k")

	suite.Contains(suite.sink.Lines()[0], "login user=bob password=🔒🔒🔒🔒🔒🔒🔒 api_key=🔒\n")
}

func (suite *HandlerSuite) TestStandardErrorFormatting() {
	log := suite.newLogger(suite.plainConfig()).Slog()
	log.Error("failed", "error", fmt.Errorf("boom"))

	line := suite.sink.Lines()[0]
	suite.Contains(line, "error.message=boom")
	suite.Contains(line, "error.type=*errors.errorString")
	suite.NotContains(line, "org_error")
}

func (suite *HandlerSuite) TestTozdErrorFormatting() {
	log := suite.newLogger(suite.plainConfig()).Slog()
	err := errors.WithDetails(errors.New("connect failed"), "host", "db")
	log.Error("startup", "error", err)

	line := suite.sink.Lines()[0]
	suite.Contains(line, `error.message="connect failed"`)
	suite.Contains(line, "error.details.host=db")
	suite.Contains(line, "error.stacktrace=")
	suite.Contains(line, "handler_test.go")
	suite.NotContains(line, "org_error")
}

func (suite *HandlerSuite) TestDurationFormatting() {
	log := suite.newLogger(suite.plainConfig()).Slog()
	log.Info("done", "took", 1500*time.Microsecond)
	suite.Contains(suite.sink.Lines()[0], "took=1.500ms")
}

func (suite *HandlerSuite) TestExitLevelsApply() {
	cfg := suite.plainConfig()
	cfg.ExitLevels = []slog.Level{scopelog.LevelError}
	log := suite.newLogger(cfg).Slog()
	log.Error("fatal through slog")
	suite.Equal([]int{1}, suite.exits.Codes())
}

func (suite *HandlerSuite) TestMirrorHandlers() {
	var mirror bytes.Buffer
	log := suite.newLogger(suite.plainConfig()).Slog(slog.NewTextHandler(&mirror, nil))
	log.Warn("mirrored", "k", "v")

	suite.Len(suite.sink.Lines(), 1)
	suite.Contains(mirror.String(), "msg=mirrored")
	suite.Contains(mirror.String(), "k=v")
}

func (suite *HandlerSuite) TestConsoleHandlerUsesLevelNames() {
	var buf bytes.Buffer
	log := slog.New(scopelog.NewConsoleHandler(&buf, scopelog.LevelTrace, true))
	log.Log(context.Background(), scopelog.LevelNotice, "console")
	log.Log(context.Background(), scopelog.LevelTrace, "fine grained")

	out := buf.String()
	suite.Contains(out, "NOTICE")
	suite.Contains(out, "console")
	suite.Contains(out, "TRACE")
	suite.NotContains(out, "\x1b[")
}
