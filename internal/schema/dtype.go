package schema

// DType represents the data type of a field in a dataset schema.
// Scalar types cover strings, spans, booleans, fixed-width integers and
// floats, and temporal values. Composite types are struct and list.
type DType string

const (
	// Scalar types
	DTypeString     DType = "string"
	DTypeStringSpan DType = "string_span"
	DTypeBool       DType = "boolean"
	DTypeInt8       DType = "int8"
	DTypeInt16      DType = "int16"
	DTypeInt32      DType = "int32"
	DTypeInt64      DType = "int64"
	DTypeUint8      DType = "uint8"
	DTypeUint16     DType = "uint16"
	DTypeUint32     DType = "uint32"
	DTypeUint64     DType = "uint64"
	DTypeFloat16    DType = "float16"
	DTypeFloat32    DType = "float32"
	DTypeFloat64    DType = "float64"
	DTypeTime       DType = "time"
	DTypeDate       DType = "date"
	DTypeTimestamp  DType = "timestamp"
	DTypeInterval   DType = "interval"
	DTypeBinary     DType = "binary"
	DTypeEmbedding  DType = "embedding"

	// Composite types
	DTypeStruct DType = "struct"
	DTypeList   DType = "list"
)

// IsValid returns true if the dtype is a recognized value.
func (t DType) IsValid() bool {
	switch t {
	case DTypeString, DTypeStringSpan, DTypeBool,
		DTypeInt8, DTypeInt16, DTypeInt32, DTypeInt64,
		DTypeUint8, DTypeUint16, DTypeUint32, DTypeUint64,
		DTypeFloat16, DTypeFloat32, DTypeFloat64,
		DTypeTime, DTypeDate, DTypeTimestamp, DTypeInterval,
		DTypeBinary, DTypeEmbedding, DTypeStruct, DTypeList:
		return true
	default:
		return false
	}
}

// IsInteger returns true for signed or unsigned integer dtypes.
func (t DType) IsInteger() bool {
	switch t {
	case DTypeInt8, DTypeInt16, DTypeInt32, DTypeInt64,
		DTypeUint8, DTypeUint16, DTypeUint32, DTypeUint64:
		return true
	default:
		return false
	}
}

// IsFloat returns true for floating-point dtypes.
func (t DType) IsFloat() bool {
	switch t {
	case DTypeFloat16, DTypeFloat32, DTypeFloat64:
		return true
	default:
		return false
	}
}

// IsNumeric returns true for integer or floating-point dtypes.
func (t DType) IsNumeric() bool {
	return t.IsInteger() || t.IsFloat()
}

// IsTemporal returns true for time-like dtypes.
func (t DType) IsTemporal() bool {
	switch t {
	case DTypeTime, DTypeDate, DTypeTimestamp, DTypeInterval:
		return true
	default:
		return false
	}
}

// IsComposite returns true for struct and list dtypes.
func (t DType) IsComposite() bool {
	return t == DTypeStruct || t == DTypeList
}

// IsOrdered returns true if values of this dtype admit a total order,
// i.e. the relational filter operators (less, greater, ...) apply.
func (t DType) IsOrdered() bool {
	return t == DTypeString || t.IsNumeric() || t.IsTemporal()
}

// String returns the string representation of the dtype.
func (t DType) String() string {
	return string(t)
}
