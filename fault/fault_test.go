package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindInput.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, KindDecode.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, KindInsufficientAudio.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, KindExtraction.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindScaling.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindInference.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindInternal.HTTPStatus())

	assert.True(t, KindInference.Retryable())
	assert.False(t, KindDecode.Retryable())
}

func TestWrapKeepsCauseAndKind(t *testing.T) {
	cause := errors.New("riff header missing")
	err := fmt.Errorf("loading upload: %w", Wrap(KindDecode, cause, "cannot decode audio"))

	assert.Equal(t, KindDecode, KindOf(err))
	assert.Equal(t, "cannot decode audio", MessageOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(KindScaling, nil, "unused"))
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, "plain", MessageOf(errors.New("plain")))
}

func TestErrorString(t *testing.T) {
	err := New(KindInsufficientAudio, "need %d rows, got %d", 2, 1)
	assert.Equal(t, "insufficient_audio: need 2 rows, got 1", err.Error())
}
