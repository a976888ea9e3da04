package storage

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicReadPolicy(t *testing.T) {
	var policy struct {
		Version   string
		Statement []struct {
			Effect    string
			Principal string
			Action    string
			Resource  string
		}
	}
	require.NoError(t, json.Unmarshal([]byte(publicReadPolicy("relay")), &policy))

	require.Len(t, policy.Statement, 1)
	assert.Equal(t, "Allow", policy.Statement[0].Effect)
	assert.Equal(t, "s3:GetObject", policy.Statement[0].Action)
	assert.Equal(t, "arn:aws:s3:::relay/*", policy.Statement[0].Resource)
}

func TestClassifyMinio(t *testing.T) {
	denied := minio.ErrorResponse{Code: "AccessDenied", Message: "Access Denied."}
	err := classifyMinio(denied, errors.New("put object: access denied"))
	assert.ErrorIs(t, err, ErrRejected)

	slow := minio.ErrorResponse{Code: "SlowDown"}
	err = classifyMinio(slow, errors.New("put object: slow down"))
	assert.NotErrorIs(t, err, ErrRejected)
}
