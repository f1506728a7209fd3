package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"cashmon/internal/core"
)

const (
	maxSingleBody = 1 << 20
	maxBatchBody  = 32 << 20
	maxBatchSize  = 10000
)

// TransactionRequest is the JSON body of a score request. Amounts and the
// description are pointers so an omitted field can be told apart from zero
// or "".
type TransactionRequest struct {
	ID          string   `json:"id" validate:"omitempty,max=64"`
	BookingDate string   `json:"booking_date" validate:"required,datetime=2006-01-02"`
	ValueDate   string   `json:"value_date" validate:"required,datetime=2006-01-02"`
	Description *string  `json:"description" validate:"required"`
	NetAmount   *float64 `json:"net_amount" validate:"required"`
	ClientID    string   `json:"client_id" validate:"max=128"`
	Category    string   `json:"category" validate:"max=128"`
	MarketValue *float64 `json:"market_value" validate:"required"`
}

// RequestError is a client mistake in the request itself. Fields maps the
// JSON field name to the rule it broke.
type RequestError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *RequestError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Fields)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads at most limit bytes of JSON from r into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return &RequestError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		}
		return &RequestError{Status: http.StatusBadRequest, Message: "malformed JSON: " + err.Error()}
	}
	if dec.More() {
		return &RequestError{Status: http.StatusBadRequest, Message: "unexpected data after JSON body"}
	}
	return nil
}

// toTransaction validates req and converts it to the domain type. prefix
// qualifies field names in batch errors.
func (s *Server) toTransaction(req TransactionRequest, prefix string) (core.Transaction, error) {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return core.Transaction{}, err
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[prefix+fe.Field()] = fe.Tag()
		}
		return core.Transaction{}, &RequestError{Status: http.StatusBadRequest, Message: "validation failed", Fields: fields}
	}

	booking, err := core.ParseDate(req.BookingDate)
	if err != nil {
		return core.Transaction{}, dateError(prefix+"booking_date", err)
	}
	value, err := core.ParseDate(req.ValueDate)
	if err != nil {
		return core.Transaction{}, dateError(prefix+"value_date", err)
	}

	txn := core.Transaction{
		ID:          strings.TrimSpace(req.ID),
		BookingDate: booking,
		ValueDate:   value,
		Description: *req.Description,
		NetAmount:   *req.NetAmount,
		ClientID:    strings.TrimSpace(req.ClientID),
		Category:    strings.TrimSpace(req.Category),
		MarketValue: *req.MarketValue,
	}
	if err := txn.Validate(); err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			return core.Transaction{}, &RequestError{
				Status:  http.StatusBadRequest,
				Message: "validation failed",
				Fields:  map[string]string{prefix + ve.Field: ve.Err.Error()},
			}
		}
		return core.Transaction{}, err
	}
	return txn, nil
}

func dateError(field string, err error) error {
	return &RequestError{Status: http.StatusBadRequest, Message: "validation failed", Fields: map[string]string{field: err.Error()}}
}

// parseBatch converts every element, collecting all field errors.
func (s *Server) parseBatch(reqs []TransactionRequest) ([]core.Transaction, error) {
	if len(reqs) == 0 {
		return nil, &RequestError{Status: http.StatusBadRequest, Message: "batch is empty"}
	}
	if len(reqs) > maxBatchSize {
		return nil, &RequestError{Status: http.StatusRequestEntityTooLarge, Message: "batch exceeds " + strconv.Itoa(maxBatchSize) + " transactions"}
	}

	txns := make([]core.Transaction, 0, len(reqs))
	fields := map[string]string{}
	for i, req := range reqs {
		txn, err := s.toTransaction(req, "["+strconv.Itoa(i)+"].")
		if err != nil {
			var re *RequestError
			if !errors.As(err, &re) {
				return nil, err
			}
			for k, v := range re.Fields {
				fields[k] = v
			}
			continue
		}
		txns = append(txns, txn)
	}
	if len(fields) > 0 {
		return nil, &RequestError{Status: http.StatusBadRequest, Message: "validation failed", Fields: fields}
	}
	return txns, nil
}

// queryInt reads a bounded integer query parameter.
func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, &RequestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("%s must be an integer between %d and %d", name, lo, hi),
		}
	}
	return n, nil
}
