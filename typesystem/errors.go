package typesystem

import "errors"

// Sentinel errors wrapped by typesystem operations; callers match them with
// errors.Is and additionally report a diagnostic.Diagnostic carrying source
// location where one is available.
var (
	ErrUnsupportedVersion    = errors.New("unsupported tosca_definitions_version")
	ErrDuplicateType         = errors.New("duplicate type definition")
	ErrTypeCycle             = errors.New("cycle in derived_from chain")
	ErrUnknownType           = errors.New("unknown type")
	ErrIncompatibleDerivation = errors.New("incompatible type override")
)
