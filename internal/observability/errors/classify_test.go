package errors

import (
	"fmt"
	"testing"

	apperrors "github.com/openregistrar/auditcore/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Empty(t, Classify(nil))
	assert.Equal(t, "errors_errorstring", Classify(fmt.Errorf("plain")))

	// Wrapping must not change the classification of the innermost error.
	inner := apperrors.Transient("engine unavailable")
	assert.Equal(t, Classify(inner), Classify(fmt.Errorf("claim: %w", inner)))
	assert.Equal(t, "errors_apperror", Classify(inner))
}
