package postgresql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{Host: "db", Port: 5433, User: "media", Password: "pw", Database: "mediaqueue"}
	assert.Equal(t, "host=db port=5433 user=media password=pw dbname=mediaqueue sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}
