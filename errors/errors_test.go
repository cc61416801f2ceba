package errors_test

import (
	"fmt"
	"testing"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFormatsMessage(t *testing.T) {
	err := errors.New(errors.ERR_NOT_FOUND, "block %s not found", "abc123")
	assert.Equal(t, errors.ERR_NOT_FOUND, err.Code)
	assert.Contains(t, err.Error(), "abc123")
}

func TestNewWrapsTrailingError(t *testing.T) {
	inner := fmt.Errorf("disk full")
	err := errors.New(errors.ERR_STORAGE, "write failed", inner)
	require.NotNil(t, err.WrappedErr)
	assert.Contains(t, err.Error(), "disk full")
}

func TestNewWrapsTrailingTypedError(t *testing.T) {
	inner := errors.NewNotFoundError("tx missing")
	outer := errors.New(errors.ERR_PROCESSING, "could not apply block", inner)
	assert.Equal(t, errors.ERR_PROCESSING, outer.Code)

	var target *errors.Error
	require.True(t, errors.As(outer, &target))
	assert.Equal(t, errors.ERR_PROCESSING, target.Code)
}

func TestIsMatchesByCode(t *testing.T) {
	sentinel := errors.NewNotFoundError("sentinel")
	wrapped := errors.New(errors.ERR_PROCESSING, "lookup failed", errors.NewNotFoundError("tx missing"))

	assert.True(t, wrapped.Is(sentinel))
	assert.False(t, wrapped.Is(errors.NewInvalidArgumentError("x")))
}

func TestNamedConstructors(t *testing.T) {
	cases := []struct {
		name string
		err  *errors.Error
		code errors.ERR
	}{
		{"not found", errors.NewNotFoundError("x"), errors.ERR_NOT_FOUND},
		{"invalid argument", errors.NewInvalidArgumentError("x"), errors.ERR_INVALID_ARGUMENT},
		{"already exists", errors.NewAlreadyExistsError("x"), errors.ERR_ALREADY_EXISTS},
		{"configuration", errors.NewConfigurationError("x"), errors.ERR_CONFIGURATION},
		{"processing", errors.NewProcessingError("x"), errors.ERR_PROCESSING},
		{"storage", errors.NewStorageError("x"), errors.ERR_STORAGE},
		{"service", errors.NewServiceError("x"), errors.ERR_SERVICE},
		{"invalid state", errors.NewInvalidStateError("x"), errors.ERR_INVALID_STATE},
		{"network", errors.NewNetworkError("x"), errors.ERR_NETWORK},
		{"timeout", errors.NewTimeoutError("x"), errors.ERR_TIMEOUT},
		{"peer misbehavior", errors.NewPeerMisbehaviorError("x"), errors.ERR_PEER_MISBEHAVIOR},
		{"consensus invariant", errors.NewConsensusInvariantError("x"), errors.ERR_CONSENSUS_INVARIANT},
		{"not synced", errors.NewNotSyncedError("x"), errors.ERR_NOT_SYNCED},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.code, c.err.Code)
		})
	}
}

func TestIsConsensusInvariant(t *testing.T) {
	assert.True(t, errors.IsConsensusInvariant(errors.NewConsensusInvariantError("tip rewind invariant violated")))
	assert.False(t, errors.IsConsensusInvariant(errors.NewNotFoundError("x")))
	assert.False(t, errors.IsConsensusInvariant(fmt.Errorf("plain error")))
}

func TestJoin(t *testing.T) {
	err := errors.Join(errors.NewNotFoundError("a"), nil, errors.NewStorageError("b"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_FOUND")
	assert.Contains(t, err.Error(), "STORAGE")

	assert.Nil(t, errors.Join(nil, nil))
}

func TestNilErrorString(t *testing.T) {
	var err *errors.Error
	assert.Equal(t, "<nil>", err.Error())
}
