package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestProdLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("prod", &buf)
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("ожидали уровень info, получили %s", logger.GetLevel())
	}
	logger.Debug().Msg("скрыто")
	logger.Info().Msg("scanner: tick")
	out := buf.String()
	if strings.Contains(out, "скрыто") {
		t.Fatalf("debug не должен попадать в prod: %s", out)
	}
	if !strings.Contains(out, `"message":"scanner: tick"`) || !strings.Contains(out, `"env":"prod"`) {
		t.Fatalf("ожидали JSON-запись, получили %s", out)
	}
}

func TestDevLoggerEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("dev", &buf)
	logger.Debug().Msg("scanner: debug")
	if !strings.Contains(buf.String(), "scanner: debug") {
		t.Fatalf("ожидали debug-запись в dev, получили %q", buf.String())
	}
}
