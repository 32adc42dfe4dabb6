package flagcache

import "errors"

var (
	errMissingFlags  = errors.New("missing flags")
	errLegacyRecord  = errors.New("invalid legacy record")
	errSchemaVersion = errors.New("invalid schema version")
)
