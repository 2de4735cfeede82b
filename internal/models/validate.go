package models

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks v against its `binding` tags, the same tags gin uses when
// binding request bodies, so services can re-check payloads that did not come
// through HTTP.
func Validate(v interface{}) error {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.SetTagName("binding")
	})
	return validate.Struct(v)
}
