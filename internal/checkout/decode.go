package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

const (
	msgCartEmpty       = "Cart is empty"
	msgMissingProduct  = `Invalid cart format: each item must have a "product_id"`
	msgInvalidQuantity = `Invalid cart format: each item must have a positive "qty"`
	msgInvalidEmail    = "customerEmail must be a valid email address"
	msgMalformedBody   = "Invalid request body"
	msgBadProductID    = `Invalid cart format: "product_id" must be a string or an integer`
)

// Decoder turns an untrusted JSON body into a validated Request.
type Decoder struct {
	validate *validator.Validate
}

// NewDecoder constructs a Decoder with its own validator instance.
func NewDecoder() *Decoder {
	return &Decoder{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Decode parses body. Unknown fields, trailing data and any schema mismatch
// fail with InvalidRequest before any collaborator is contacted.
func (d *Decoder) Decode(body io.Reader) (Request, error) {
	var req Request
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return Request{}, invalidRequest(describeDecodeError(err))
	}
	if dec.More() {
		return Request{}, invalidRequest(msgMalformedBody)
	}
	return d.Validate(req)
}

// Validate applies the shape rules to an already-typed request and returns
// the normalised copy: product ids trimmed, a blank email dropped.
func (d *Decoder) Validate(req Request) (Request, error) {
	req = req.normalized()
	err := d.validate.Struct(req)
	if err == nil {
		return req, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return Request{}, invalidRequest(msgMalformedBody)
	}
	return Request{}, invalidRequest(messageFor(verrs[0]))
}

func messageFor(fe validator.FieldError) string {
	switch fe.StructField() {
	case "Cart":
		return msgCartEmpty
	case "ProductID":
		return msgMissingProduct
	case "Qty":
		return msgInvalidQuantity
	case "CustomerEmail":
		return msgInvalidEmail
	default:
		return fmt.Sprintf("invalid field %s", fe.Namespace())
	}
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return msgCartEmpty
	case errors.Is(err, errProductRef):
		return msgBadProductID
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			return fmt.Sprintf("Invalid request body: field %q has the wrong type", typeErr.Field)
		}
		return msgMalformedBody
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return "Invalid request body: " + strings.TrimPrefix(err.Error(), "json: ")
	default:
		return msgMalformedBody
	}
}
