package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "not here", NotFound("not here").Error())

	cause := errors.New("connection refused")
	err := Wrap(cause, ErrCodeUnavailable, "queue unavailable")
	assert.Equal(t, "queue unavailable: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "x"))
}

func TestCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   ErrorCode
		status int
		check  func(error) bool
	}{
		{name: "not found", err: NotFound("x"), code: ErrCodeNotFound, status: http.StatusNotFound, check: IsNotFound},
		{name: "validation", err: Validationf("bad %s", "input"), code: ErrCodeValidation, status: http.StatusBadRequest, check: IsValidation},
		{name: "conflict", err: New(ErrCodeConflict, "dup"), code: ErrCodeConflict, status: http.StatusConflict, check: IsConflict},
		{name: "foreign key", err: New(ErrCodeForeignKey, "fk"), code: ErrCodeForeignKey, status: http.StatusUnprocessableEntity, check: IsForeignKey},
		{name: "timeout", err: MapDBError(context.DeadlineExceeded), code: ErrCodeTimeout, status: http.StatusGatewayTimeout, check: IsTimeout},
		{name: "canceled", err: MapDBError(context.Canceled), code: ErrCodeCanceled, status: 499, check: IsCanceled},
		{
			name:   "unavailable wrapped by fmt",
			err:    fmt.Errorf("enqueue: %w", Wrap(errors.New("down"), ErrCodeUnavailable, "down")),
			code:   ErrCodeUnavailable,
			status: http.StatusServiceUnavailable,
			check:  IsUnavailable,
		},
		{name: "plain", err: errors.New("boom"), code: "", status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, GetCode(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			if tt.check != nil {
				assert.True(t, tt.check(tt.err))
			}
		})
	}
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "commitRef is required", PublicMessage(ValidationField("commitRef", "commitRef is required")))
	assert.Equal(t, "internal error", PublicMessage(errors.New("pq: password authentication failed")))
	assert.Equal(t, "invalid request: projectId is required",
		PublicMessage(Wrap(errors.New("projectId is required"), ErrCodeValidation, "invalid request")))
	assert.Equal(t, "queue unavailable", PublicMessage(Wrap(errors.New("dial tcp: refused"), ErrCodeUnavailable, "queue unavailable")))
	assert.Equal(t, "commitRef", GetField(fmt.Errorf("wrap: %w", ValidationField("commitRef", "required"))))
	assert.Empty(t, GetField(errors.New("x")))
}
