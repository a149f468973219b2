package migrate

import (
	"strings"
	"testing"
)

func TestRunEmptyDSN(t *testing.T) {
	err := Run("", Up)
	if err == nil {
		t.Fatal("Run with empty dsn should return error")
	}
	if !strings.Contains(err.Error(), "dsn") {
		t.Errorf("error = %q, should mention the missing dsn", err.Error())
	}
}

func TestRunUnknownDirection(t *testing.T) {
	for _, dir := range []Direction{"", "sideways", "UP", "Down"} {
		t.Run(string(dir), func(t *testing.T) {
			if err := Run("postgres://localhost/test", dir); err == nil {
				t.Errorf("Run with direction %q should return error", dir)
			}
		})
	}
}

func TestRunMalformedDSN(t *testing.T) {
	if err := Run("not-a-dsn", Up); err == nil {
		t.Error("Run with malformed dsn should return error")
	}
}
