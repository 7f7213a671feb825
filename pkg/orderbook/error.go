package orderbook

import "errors"

var (
	ErrInvalidQuantity  = errors.New("order quantity must be positive")
	ErrInvalidPrice     = errors.New("invalid order price")
	ErrInvalidPeakSize  = errors.New("iceberg peak size must be positive")
	ErrInvalidStopPrice = errors.New("invalid stop price")
	ErrOrderNotFound    = errors.New("order not found")
	ErrSnapshotSchema   = errors.New("unsupported snapshot schema version")
	ErrSnapshotCorrupt  = errors.New("snapshot failed validation")
	ErrEventParse       = errors.New("malformed event record")
	ErrReplayExhausted  = errors.New("no more events to replay")
)
