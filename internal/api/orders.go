package api

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/bher20/movein/internal/checkout"
	"github.com/bher20/movein/internal/logging"
	"github.com/bher20/movein/internal/storage"
)

// RecordOrders stores every confirmation so it can be looked up later. The
// session token is stored masked and answers are never persisted.
func RecordOrders(st storage.Storage, token func() string, log *zap.Logger) checkout.ConfirmationHook {
	log = logging.OrNop(log)
	return func(ctx context.Context, conf checkout.OrderConfirmation, _ checkout.State) {
		payload, err := json.Marshal(conf)
		if err != nil {
			log.Error("encode order", zap.String("order_id", conf.OrderID), zap.Error(err))
			return
		}
		o := storage.Order{
			ID:           conf.OrderID,
			SessionToken: logging.MaskLast4(token()),
			Reference:    conf.Reference,
			Address:      conf.Address.Format(),
			Payload:      payload,
			CreatedAt:    conf.CreatedAt,
		}
		if err := st.SaveOrder(ctx, o); err != nil {
			log.Warn("save order failed", zap.String("order_id", conf.OrderID), zap.Error(err))
		}
	}
}
