package xpubsub

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestAlreadyExists(t *testing.T) {
	assert.False(t, AlreadyExists(nil))
	assert.False(t, AlreadyExists(errors.New("rpc error: code = NotFound")))

	assert.True(t, AlreadyExists(&googleapi.Error{Code: 409}))
	assert.True(t, AlreadyExists(fmt.Errorf("creating topic: %w", &googleapi.Error{Code: 409})))
	assert.False(t, AlreadyExists(&googleapi.Error{Code: 404}))

	assert.True(t, AlreadyExists(errors.New("rpc error: code = AlreadyExists desc = Topic already exists")))
}
