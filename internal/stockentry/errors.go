package stockentry

import (
	"errors"
	"fmt"
)

// ErrorKind identifies a validation failure. All kinds are user-facing,
// non-retryable and abort the whole validate/submit pipeline before any
// ledger or production-order mutation.
type ErrorKind string

const (
	ErrKindInvalidPurpose            ErrorKind = "INVALID_PURPOSE"
	ErrKindInvalidPostingTime        ErrorKind = "INVALID_POSTING_TIME"
	ErrKindNotStockItem              ErrorKind = "NOT_STOCK_ITEM"
	ErrKindMissingWarehouse          ErrorKind = "MISSING_WAREHOUSE"
	ErrKindMissingSourceWarehouse    ErrorKind = "MISSING_SOURCE_WAREHOUSE"
	ErrKindMissingTargetWarehouse    ErrorKind = "MISSING_TARGET_WAREHOUSE"
	ErrKindTargetWarehouseMismatch   ErrorKind = "TARGET_WAREHOUSE_MISMATCH"
	ErrKindSourceEqualsTarget        ErrorKind = "SOURCE_EQUALS_TARGET"
	ErrKindIncorrectValuationRate    ErrorKind = "INCORRECT_VALUATION_RATE"
	ErrKindInvalidBOM                ErrorKind = "INVALID_BOM"
	ErrKindFinishedGoodsQtyMismatch  ErrorKind = "FINISHED_GOODS_QTY_MISMATCH"
	ErrKindDuplicateProductionEntry  ErrorKind = "DUPLICATE_ENTRY_FOR_PRODUCTION_ORDER"
	ErrKindStockOverReturn           ErrorKind = "STOCK_OVER_RETURN"
	ErrKindStockOverProduction       ErrorKind = "STOCK_OVER_PRODUCTION"
	ErrKindMappingMismatch           ErrorKind = "MAPPING_MISMATCH"
	ErrKindInvalidStatus             ErrorKind = "INVALID_STATUS"
	ErrKindNotUpdateStock            ErrorKind = "NOT_UPDATE_STOCK"
	ErrKindDoesNotExist              ErrorKind = "DOES_NOT_EXIST"
	ErrKindOrderStopped              ErrorKind = "PRODUCTION_ORDER_STOPPED"
	ErrKindFiscalYearMismatch        ErrorKind = "FISCAL_YEAR_MISMATCH"
	ErrKindManufacturingQtyMandatory ErrorKind = "MANUFACTURING_QTY_MANDATORY"
)

// ValidationError is a typed, user-facing validation failure. Row is the
// 1-based line index, zero for header-level failures.
type ValidationError struct {
	Kind    ErrorKind
	Row     int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("stockentry: row %d: %s", e.Row, e.Message)
	}
	return fmt.Sprintf("stockentry: %s", e.Message)
}

// ErrorKind exposes the machine-readable kind for HTTP problem responses.
func (e *ValidationError) ErrorKind() string {
	return string(e.Kind)
}

func newError(kind ErrorKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func newRowError(kind ErrorKind, row int, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Row: row, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a ValidationError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Kind == kind
}

// ErrEntryNotFound indicates the stock entry does not exist.
var ErrEntryNotFound = errors.New("stockentry: not found")
