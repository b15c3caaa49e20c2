package notify

import (
	"context"

	"go.uber.org/zap"
)

// NopDispatcher logs events instead of publishing them.  It stands in
// when no broker is configured, keeping the swap engine's post-commit
// notification path identical either way.
type NopDispatcher struct {
	logger *zap.Logger
}

func NewNopDispatcher(logger *zap.Logger) *NopDispatcher {
	return &NopDispatcher{logger: logger}
}

func (d *NopDispatcher) SwapRequestCreated(_ context.Context, targetUserID, requestID uint64, requesterName, requesterSlotTitle, targetSlotTitle string) {
	d.logger.Info("swap event (broker disabled)",
		zap.String("type", "created"),
		zap.Uint64("recipient", targetUserID),
		zap.Uint64("request_id", requestID),
		zap.String("requester", requesterName))
}

func (d *NopDispatcher) SwapRequestAccepted(_ context.Context, requesterID, requestID uint64, requesterSlotTitle, targetSlotTitle string) {
	d.logger.Info("swap event (broker disabled)",
		zap.String("type", "accepted"),
		zap.Uint64("recipient", requesterID),
		zap.Uint64("request_id", requestID))
}

func (d *NopDispatcher) SwapRequestRejected(_ context.Context, requesterID, requestID uint64, requesterSlotTitle, targetSlotTitle string) {
	d.logger.Info("swap event (broker disabled)",
		zap.String("type", "rejected"),
		zap.Uint64("recipient", requesterID),
		zap.Uint64("request_id", requestID))
}
