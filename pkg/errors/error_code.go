package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidQuantity      ErrorCode = 102
	ErrCodeInvalidPrice         ErrorCode = 103

	// Market data errors (200-299)
	ErrCodeDataFeed       ErrorCode = 200
	ErrCodeDataNotFound   ErrorCode = 201
	ErrCodeDataOutOfOrder ErrorCode = 202
	ErrCodeAssetNotFound  ErrorCode = 203
	ErrCodePriceMissing   ErrorCode = 204

	// Model errors (300-399)
	ErrCodeTraining      ErrorCode = 300
	ErrCodeModelNotFound ErrorCode = 301
	ErrCodePrediction    ErrorCode = 302

	// Ledger errors (400-499)
	ErrCodeInsufficientFunds    ErrorCode = 400
	ErrCodeInsufficientQuantity ErrorCode = 401
	ErrCodeNoSuchPosition       ErrorCode = 402

	// Backtest errors (500-599)
	ErrCodeBacktestConfig ErrorCode = 500
	ErrCodeBacktestState  ErrorCode = 501

	// Simulator/store errors (600-699)
	ErrCodeAccountNotFound ErrorCode = 600
	ErrCodeStoreQuery      ErrorCode = 601
	ErrCodeStoreTx         ErrorCode = 602
)
