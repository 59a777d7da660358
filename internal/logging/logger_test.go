package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("debug", "json", &buf)

	logger.WithField("patient_id", "sigir-1").Debug("Evaluated trial")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Evaluated trial", entry["message"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "sigir-1", entry["patient_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewWithOutput_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("info", "TEXT", &buf)

	logger.Info("ready")
	assert.Contains(t, buf.String(), "msg=ready")
}

func TestNewWithOutput_UnknownLevel(t *testing.T) {
	logger := NewWithOutput("chatty", "json", &bytes.Buffer{})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	logger = NewWithOutput("WARN", "json", &bytes.Buffer{})
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
}
