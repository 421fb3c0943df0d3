package encryption

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledEncryptorPassesThrough(t *testing.T) {
	enc, err := NewGPGEncryptor("")
	require.NoError(t, err)
	assert.False(t, enc.IsEnabled())
	assert.Empty(t, enc.GetEncryptedExtension())

	rc, err := enc.Encrypt(context.Background(), strings.NewReader("plain archive"))
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "plain archive", string(data))
}

func TestNilEncryptorIsDisabled(t *testing.T) {
	var enc *GPGEncryptor
	assert.False(t, enc.IsEnabled())
	assert.Empty(t, enc.GetEncryptedExtension())
}

func TestMissingKeyFile(t *testing.T) {
	_, err := NewGPGEncryptor(filepath.Join(t.TempDir(), "absent.asc"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "public key file not found")
}
