package middleware

import (
	"fmt"
	"net/http"
	"reflect"

	"github.com/cstockton/go-conv"
	"github.com/labstack/echo/v4"
)

// BindAndValidate bind request context and validate request struct.
// Bind includes request body, params, query, headers and the authenticated agent.
// Validate request struct, response bad request with error message if the request is invalid.
func BindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return err
	}

	if err := bindHeader(c.Request().Header, req); err != nil {
		return err
	}

	if err := bindAgent(c, req); err != nil {
		return err
	}

	if err := c.Validate(req); err != nil {
		return NewResponseError(http.StatusBadRequest, "invalid_argument", err)
	}

	return nil
}

// bindAgent decodes the authenticated agent to struct by tag `agent:"<field>"`.
// Supported fields: id, email, role, name (display name).
func bindAgent(c echo.Context, dst interface{}) error {
	agent := GetAgent(c)
	if agent == nil {
		return nil
	}

	getValueFn := func(tagValue string) (interface{}, error) {
		switch tagValue {
		case "id":
			return agent.ID, nil
		case "email":
			return agent.Email, nil
		case "role":
			return agent.Role, nil
		case "name":
			return agent.DisplayName(), nil
		case "exp":
			if agent.ExpiresAt.IsZero() {
				return int64(0), nil
			}
			return agent.ExpiresAt.Unix(), nil
		default:
			return nil, fmt.Errorf("binding agent field %s is not supported", tagValue)
		}
	}

	return bindStruct(dst, "agent", getValueFn)
}

// bindHeader decode http header to struct by tag `header:"<header_name>"`
// out must be a pointer to a struct
func bindHeader(header http.Header, dst interface{}) error {
	getValueFn := func(tagValue string) (interface{}, error) {
		return header.Get(tagValue), nil
	}

	return bindStruct(dst, "header", getValueFn)
}

// bindStruct decode to struct by custom tag `tagName:"tagValue"`
// dst must be a pointer to a struct
func bindStruct(dst interface{}, tagName string, getValueFn func(tagValue string) (interface{}, error)) error {
	ptr := reflect.ValueOf(dst)
	if ptr.Kind() != reflect.Ptr {
		return fmt.Errorf("non-pointer passed to Unmarshal")
	}

	indirect := reflect.Indirect(ptr)
	if indirect.Kind() != reflect.Struct {
		return nil
	}
	structType := indirect.Type()

	for i := 0; i < structType.NumField(); i++ {
		structField := structType.Field(i)
		tagValue := structField.Tag.Get(tagName)
		if tagValue == "-" || tagValue == "" {
			continue
		}

		field := indirect.Field(i)
		value, err := getValueFn(tagValue)
		if err != nil {
			return err
		}
		if err := conv.Infer(field, value); err != nil {
			return fmt.Errorf("cannot parse %s.%s as %s from: %#v / %s",
				structType.Name(), structField.Name, field.Type(), value, err)
		}
	}

	return nil
}
