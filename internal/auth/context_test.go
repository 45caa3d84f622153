// ABOUTME: Tests for auth context propagation
// ABOUTME: Verifies WithAuth/FromContext round trips and absent values

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))
	assert.Equal(t, "", MethodFromContext(ctx))

	ctx = WithAuth(ctx, &AuthContext{Method: MethodAPIKey})
	assert.Equal(t, MethodAPIKey, FromContext(ctx).Method)
	assert.Equal(t, MethodAPIKey, MethodFromContext(ctx))
}

func TestFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), authContextKey{}, "not an auth context")
	assert.Nil(t, FromContext(ctx))
}

func TestVerified_Nil(t *testing.T) {
	var a *AuthContext
	assert.False(t, a.Verified())
}
