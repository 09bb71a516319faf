package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (suite *ErrorTestSuite) TestNewError() {
	err := New(ErrCodeInsufficientFunds, "insufficient funds")
	suite.NotNil(err)
	suite.Equal(ErrCodeInsufficientFunds, err.Code)
	suite.Equal("insufficient funds", err.Message)
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestNewfError() {
	err := Newf(ErrCodeNoSuchPosition, "no open position for %s", "AAPL")
	suite.NotNil(err)
	suite.Equal(ErrCodeNoSuchPosition, err.Code)
	suite.Equal("no open position for AAPL", err.Message)
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestWrapError() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeDataFeed, "failed to fetch bars", cause)
	suite.NotNil(err)
	suite.Equal(ErrCodeDataFeed, err.Code)
	suite.Equal("failed to fetch bars", err.Message)
	suite.Equal(cause, err.Cause)
}

func (suite *ErrorTestSuite) TestErrorString() {
	err := New(ErrCodeTraining, "training failed")
	suite.Equal("[300] training failed", err.Error())

	wrapped := Wrap(ErrCodeTraining, "training failed", errors.New("not enough data"))
	suite.Equal("[300] training failed: not enough data", wrapped.Error())
}

func (suite *ErrorTestSuite) TestUnwrap() {
	cause := errors.New("root cause")
	err := Wrap(ErrCodeStoreTx, "commit failed", cause)
	suite.Equal(cause, errors.Unwrap(err))
	suite.True(Is(err, cause))
}

func (suite *ErrorTestSuite) TestGetCode() {
	err := New(ErrCodeAccountNotFound, "account not found")
	suite.Equal(ErrCodeAccountNotFound, GetCode(err))
	suite.Equal(ErrCodeUnknown, GetCode(errors.New("plain error")))
}

func (suite *ErrorTestSuite) TestHasCodeThroughChain() {
	inner := New(ErrCodeInsufficientQuantity, "not enough quantity")
	outer := fmt.Errorf("sell failed: %w", inner)
	suite.True(HasCode(outer, ErrCodeInsufficientQuantity))
	suite.False(HasCode(outer, ErrCodeInsufficientFunds))
}
