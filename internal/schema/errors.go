package schema

import "errors"

var (
	ErrInvalidDType    = errors.New("invalid dtype")
	ErrInvalidPath     = errors.New("invalid path")
	ErrSchemaConflict  = errors.New("schema conflict")
	ErrFieldNotFound   = errors.New("field not found")
	ErrInvalidWildcard = errors.New("wildcard segment requires a repeated parent")
)
