package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

func newObservedLogger(t *testing.T) (*RollbarLogger, *observer.ObservedLogs) {
	t.Helper()
	zcore, logs := observer.New(zap.DebugLevel)
	conf := *core.Conf
	conf.RollbarToken = ""
	return NewRollbarLogger(zap.New(zcore), &conf), logs
}

func TestRollbarLogger_Fields(t *testing.T) {
	logger, logs := newObservedLogger(t)

	usr := user.User{ID: "user-1", Username: "jdoe"}
	logger.Error("saving student", errors.New("boom"), map[string]interface{}{"student_id": "st-1"}, usr, usr)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		entry := entries[0]
		assert.Equal(t, "saving student", entry.Message)
		ctx := entry.ContextMap()
		assert.Equal(t, "boom", ctx["error"])
		assert.Equal(t, "st-1", ctx["student_id"])
		assert.Equal(t, "user-1", ctx["user_id"])
	}
}

func TestRollbarLogger_Levels(t *testing.T) {
	logger, logs := newObservedLogger(t)

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")

	assert.Equal(t, 3, logs.Len())
	assert.Len(t, logs.FilterMessage("warn").All(), 1)
}
