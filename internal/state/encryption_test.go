package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncrypt_NoKeyPassesThrough(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")

	content := []byte(`{"version":1}`)
	out, err := Encrypt(content)
	require.NoError(t, err)
	assert.Equal(t, content, out)
	assert.False(t, IsEncrypted(out))
}

func TestEncrypt_RoundTrip(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "correct horse battery staple")

	content := []byte(`{"version":1,"serial":7}`)
	encrypted, err := Encrypt(content)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(encrypted))
	assert.NotContains(t, string(encrypted), "serial")

	decrypted, err := Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, content, decrypted)
}

func TestDecrypt_PlaintextPassesThrough(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")

	content := []byte(`{"version":1}`)
	out, err := Decrypt(content)
	require.NoError(t, err)
	assert.Equal(t, content, out)
}

func TestDecrypt_MissingKeyFails(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "a-long-enough-passphrase")
	encrypted, err := Encrypt([]byte(`{}`))
	require.NoError(t, err)

	t.Setenv(EncryptionKeyEnvVar, "")
	_, err = Decrypt(encrypted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EncryptionKeyEnvVar)
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "the-right-passphrase")
	encrypted, err := Encrypt([]byte(`{}`))
	require.NoError(t, err)

	t.Setenv(EncryptionKeyEnvVar, "the-wrong-passphrase")
	_, err = Decrypt(encrypted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decrypt")
}

func TestEncrypt_ShortPassphraseRejected(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "too-short")

	_, err := Encrypt([]byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 16 characters")

	_, err = Decrypt([]byte(encryptedHeader + "abcd\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 16 characters")
}

func TestLocalStore_EncryptedAtRest(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "fleet-state-passphrase")
	path := filepath.Join(t.TempDir(), "state.default.json")
	ctx := context.Background()

	store := NewLocal(path, "default")
	rec := sampleRecord("main")
	require.NoError(t, store.Put(ctx, rec.Addr(), rec))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(raw))
	assert.NotContains(t, string(raw), "virtualNetworks")

	reopened := NewLocal(path, "default")
	got, err := reopened.Get(ctx, rec.Addr())
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
}
