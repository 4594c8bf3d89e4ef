package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setKey(t *testing.T) {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	t.Setenv(keyEnvVar, base64.StdEncoding.EncodeToString(key))
}

func TestRoundTrip(t *testing.T) {
	setKey(t)

	stored, err := EncryptPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored, prefix))
	assert.NotContains(t, stored, "hunter2")

	plain, err := DecryptPassword(stored)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

func TestPassThroughWithoutKey(t *testing.T) {
	t.Setenv(keyEnvVar, "")

	stored, err := EncryptPassword("hunter2")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", stored)

	plain, err := DecryptPassword("hunter2")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

func TestPlaintextRowsStillDecodeWithKey(t *testing.T) {
	setKey(t)
	plain, err := DecryptPassword("legacy-password")
	require.NoError(t, err)
	assert.Equal(t, "legacy-password", plain)
}

func TestInvalidKeyRejected(t *testing.T) {
	t.Setenv(keyEnvVar, base64.StdEncoding.EncodeToString([]byte("short")))
	_, err := EncryptPassword("pw")
	assert.Error(t, err)
}

func TestDecryptWithoutKeyFails(t *testing.T) {
	setKey(t)
	stored, err := EncryptPassword("pw")
	require.NoError(t, err)

	t.Setenv(keyEnvVar, "")
	_, err = DecryptPassword(stored)
	assert.Error(t, err)
}
