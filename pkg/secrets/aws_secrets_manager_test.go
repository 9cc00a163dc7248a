package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSecretsAPI struct{ mock.Mock }

func (m *mockSecretsAPI) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	args := m.Called(aws.ToString(in.SecretId))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*secretsmanager.GetSecretValueOutput), args.Error(1)
}

func TestGetSecretJSON_CachesWithinTTL(t *testing.T) {
	api := new(mockSecretsAPI)
	api.On("GetSecretValue", "gateway/providers/moonpay").
		Return(&secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"api_key":"pk_live"}`)}, nil).Once()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newProvider(api, "gateway/", time.Minute)
	p.now = func() time.Time { return now }

	var out struct {
		APIKey string `json:"api_key"`
	}
	require.NoError(t, p.GetSecretJSON(context.Background(), "providers/moonpay", &out))
	assert.Equal(t, "pk_live", out.APIKey)
	require.NoError(t, p.GetSecretJSON(context.Background(), "providers/moonpay", &out))
	api.AssertExpectations(t)

	api.On("GetSecretValue", "gateway/providers/moonpay").
		Return(&secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"api_key":"pk_rotated"}`)}, nil).Once()
	now = now.Add(2 * time.Minute)
	require.NoError(t, p.GetSecretJSON(context.Background(), "providers/moonpay", &out))
	assert.Equal(t, "pk_rotated", out.APIKey)
}

func TestGetSecret_Errors(t *testing.T) {
	api := new(mockSecretsAPI)
	api.On("GetSecretValue", "missing").Return(nil, errors.New("ResourceNotFoundException")).Once()
	api.On("GetSecretValue", "binary").Return(&secretsmanager.GetSecretValueOutput{SecretBinary: []byte{1}}, nil).Once()
	api.On("GetSecretValue", "garbled").Return(&secretsmanager.GetSecretValueOutput{SecretString: aws.String("not json")}, nil).Once()

	p := newProvider(api, "", 0)
	_, err := p.GetSecret(context.Background(), "missing")
	assert.Error(t, err)
	_, err = p.GetSecret(context.Background(), "binary")
	assert.Error(t, err)
	var v map[string]string
	assert.Error(t, p.GetSecretJSON(context.Background(), "garbled", &v))
}
