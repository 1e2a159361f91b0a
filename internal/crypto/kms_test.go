package crypto

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKMS "wraps" data keys by reversing them, which is enough to check
// that the service round-trips through the KMS client.
type fakeKMS struct {
	generateErr error
	decryptErr  error
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

func (f *fakeKMS) GenerateDataKey(_ context.Context, in *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return &kms.GenerateDataKeyOutput{KeyId: in.KeyId, Plaintext: key, CiphertextBlob: reverse(key)}, nil
}

func (f *fakeKMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	if f.decryptErr != nil {
		return nil, f.decryptErr
	}
	return &kms.DecryptOutput{Plaintext: reverse(in.CiphertextBlob)}, nil
}

func TestKMSService_RoundTrip(t *testing.T) {
	s := NewKMSService(&fakeKMS{}, "alias/test")
	ctx := context.Background()

	long := strings.Repeat("Reunión con el equipo de desarrollo. ", 500)
	enc, err := s.Encrypt(ctx, long)
	require.NoError(t, err)
	assert.NotContains(t, enc, "Reunión")

	dec, err := s.Decrypt(ctx, enc)
	require.NoError(t, err)
	assert.Equal(t, long, dec)
}

func TestKMSService_FreshKeyPerValue(t *testing.T) {
	s := NewKMSService(&fakeKMS{}, "alias/test")
	ctx := context.Background()

	a, err := s.Encrypt(ctx, "same")
	require.NoError(t, err)
	b, err := s.Encrypt(ctx, "same")
	require.NoError(t, err)
	assert.False(t, bytes.Equal([]byte(a), []byte(b)))
}

func TestKMSService_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewKMSService(&fakeKMS{generateErr: errors.New("throttled")}, "k").Encrypt(ctx, "x")
	assert.Error(t, err)

	enc, err := NewKMSService(&fakeKMS{}, "k").Encrypt(ctx, "x")
	require.NoError(t, err)
	_, err = NewKMSService(&fakeKMS{decryptErr: errors.New("denied")}, "k").Decrypt(ctx, enc)
	assert.Error(t, err)

	_, err = NewKMSService(&fakeKMS{}, "k").Decrypt(ctx, "%%%not-base64")
	assert.Error(t, err)
}

func TestMockEncryptor(t *testing.T) {
	m := NewMockEncryptor()
	ctx := context.Background()

	enc, _ := m.Encrypt(ctx, "hola")
	assert.Equal(t, "mock:hola", enc)
	dec, _ := m.Decrypt(ctx, enc)
	assert.Equal(t, "hola", dec)
}
