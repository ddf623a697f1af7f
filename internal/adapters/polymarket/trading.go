package polymarket

// trading.go — envío de órdenes y estado de órdenes vía CLOB.
//
// Submitter implementa ports.OrderSubmitter y ports.OrderStatusSource.
// Las órdenes se envían como GTC limit al precio ya redondeado al tick.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

const (
	orderPath     = "/order"
	dataOrderPath = "/data/order/"
	orderTypeGTC  = "GTC"
)

// Submitter firma y envía órdenes live.
type Submitter struct {
	auth *AuthClient
}

// NewSubmitter crea el submitter sobre un AuthClient.
func NewSubmitter(auth *AuthClient) *Submitter {
	return &Submitter{auth: auth}
}

// SubmitOrder firma y hace POST /order. Un success=false del CLOB es error.
func (s *Submitter) SubmitOrder(ctx context.Context, req domain.SubmitRequest) (domain.SubmitResult, error) {
	creds, err := s.auth.ensureCreds(ctx)
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("trading.SubmitOrder: creds: %w", err)
	}

	signed, err := s.auth.buildSignedOrder(req)
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("trading.SubmitOrder: sign: %w", err)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          string(req.Side),
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     creds.APIKey,
		OrderType: orderTypeGTC,
	}

	var resp clobOrderResponse
	if err := s.auth.doL2(ctx, http.MethodPost, orderPath, body, &resp); err != nil {
		return domain.SubmitResult{}, fmt.Errorf("trading.SubmitOrder: post: %w", err)
	}
	if !resp.Success || resp.ErrorMsg != "" {
		return domain.SubmitResult{}, fmt.Errorf("trading.SubmitOrder: clob rejected: %s", resp.ErrorMsg)
	}

	slog.Info("trading: order submitted",
		"local_id", req.LocalID,
		"venue_id", resp.OrderID,
		"side", req.Side,
		"price", req.Price,
		"shares", req.Shares,
		"status", resp.Status,
	)
	return domain.SubmitResult{
		VenueOrderID: resp.OrderID,
		Status:       normaliseStatus(resp.Status),
		TxHashes:     resp.TxHashes,
	}, nil
}

// GetOrder consulta GET /data/order/{id}. 404 o respuesta vacía → found=false.
func (s *Submitter) GetOrder(ctx context.Context, venueOrderID string) (domain.VenueOrder, bool, error) {
	var resp *clobOrder
	err := s.auth.doL2(ctx, http.MethodGet, dataOrderPath+url.PathEscape(venueOrderID), nil, &resp)
	if IsNotFound(err) {
		return domain.VenueOrder{}, false, nil
	}
	if err != nil {
		return domain.VenueOrder{}, false, fmt.Errorf("trading.GetOrder %s: %w", venueOrderID, err)
	}
	if resp == nil || resp.ID == "" {
		return domain.VenueOrder{}, false, nil
	}
	return mapVenueOrder(*resp), true, nil
}
