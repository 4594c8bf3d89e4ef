package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskSpecUnmarshal(t *testing.T) {
	var spec TaskSpec
	require.NoError(t, json.Unmarshal([]byte(`{"Ingestion":{"table":"users"}}`), &spec))
	assert.Equal(t, TaskIngestion, spec.Type)
	assert.JSONEq(t, `{"table":"users"}`, string(spec.Detail))
}

func TestTaskSpecUnmarshalRejectsBadShapes(t *testing.T) {
	for name, payload := range map[string]string{
		"unknown type": `{"Cleanup":{}}`,
		"two keys":     `{"Ingestion":{},"Transformation":{}}`,
		"empty object": `{}`,
		"not object":   `["Ingestion"]`,
	} {
		t.Run(name, func(t *testing.T) {
			var spec TaskSpec
			assert.Error(t, json.Unmarshal([]byte(payload), &spec))
		})
	}
}

func TestTaskSpecMarshalRoundTrip(t *testing.T) {
	spec := TaskSpec{Type: TaskTransformation, Detail: json.RawMessage(`{"sql":"select 1"}`)}
	out, err := json.Marshal(spec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Transformation":{"sql":"select 1"}}`, string(out))
}

func TestConnectionDSN(t *testing.T) {
	conn := Connection{
		Source:   SourcePostgres,
		Host:     "db.internal",
		Port:     5432,
		User:     "app",
		Password: "pw",
		Database: "warehouse",
	}
	dsn, err := conn.DSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:pw@db.internal:5432/warehouse?sslmode=disable", dsn)

	conn.Source = SourceMySQL
	conn.Port = 3306
	dsn, err = conn.DSN()
	require.NoError(t, err)
	assert.Equal(t, "app:pw@tcp(db.internal:3306)/warehouse", dsn)

	conn.Source = "oracle"
	_, err = conn.DSN()
	assert.Error(t, err)
}

func TestTerminalStatuses(t *testing.T) {
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())

	assert.False(t, TaskInProgress.Terminal())
	assert.True(t, TaskCompleted.Terminal())
	assert.True(t, TaskFailed.Terminal())
}
