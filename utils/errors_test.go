package utils

import (
	"testing"

	"go.viam.com/test"
)

type someStruct struct{}

func TestNewUnexpectedTypeError(t *testing.T) {
	err := NewUnexpectedTypeError(&someStruct{}, 5)
	test.That(t, err.Error(), test.ShouldEqual, "expected *utils.someStruct but got int")
}
