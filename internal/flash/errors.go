package flash

import "codeberg.org/mutker/acmonitor/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("flash_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("flash_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("flash_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("flash_schema_migration_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed
	ErrWriteFailed  = errors.ErrPersistence

	// Aggregation Errors
	ErrAggregation = errors.ErrorCode("flash_aggregation_incomplete")
)
