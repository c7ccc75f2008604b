package logger_test

import (
	"errors"
	"testing"

	"focusbot/internal/logger"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

func TestNew(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", ""} {
		t.Run(level, func(t *testing.T) {
			log, err := logger.New(level)
			gt.NoError(t, err).Required()
			gt.Value(t, log).NotNil()
		})
	}
}

func TestErrFields(t *testing.T) {
	t.Run("plain error yields one field", func(t *testing.T) {
		fields := logger.ErrFields(errors.New("boom"))
		gt.Array(t, fields).Length(1)
	})

	t.Run("goerr error carries values and stack", func(t *testing.T) {
		err := goerr.Wrap(errors.New("boom"), "failed", goerr.V("user_id", "42"))
		fields := logger.ErrFields(err)
		gt.Array(t, fields).Length(3)
		gt.Value(t, fields[1].Key).Equal("values")
		gt.Value(t, fields[2].Key).Equal("stack")
	})
}
