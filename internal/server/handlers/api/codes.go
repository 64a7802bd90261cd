package api

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeAccessDenied   = "E_ACCESS_DENIED"   // access denied
	CodeUnauthorized   = "E_UNAUTHORIZED"    // missing or wrong api key

	// File errors
	CodeFileNotFound     = "E_FILE_NOT_FOUND"               // the path is not in the ledger.
	CodeFileInvalidPath  = "E_FILE_INVALID_PATH"            // the path is empty, absolute or escapes the vault.
	CodeFileConflict     = "E_FILE_CONFLICT"                // the claimed revision is older than the ledger's.
	CodeFileReadFailed   = "E_FILE_READ_OPERATION_FAILED"   // a failure reading content from the content store.
	CodeFileWriteFailed  = "E_FILE_WRITE_OPERATION_FAILED"  // a failure storing content or updating the index.
	CodeFileDeleteFailed = "E_FILE_DELETE_OPERATION_FAILED" // a failure deleting a path.
	CodeManifestFailed   = "E_MANIFEST_OPERATION_FAILED"    // a failure listing the ledger.
)
