package receipt

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cloudx-io/openbid/auctionapi"
	"github.com/cloudx-io/openbid/core"
)

// Issuer builds settlement receipts: it hashes the ledger with a fresh nonce,
// encodes the payload as CBOR and hands it to a Signer.
type Issuer struct {
	signer   Signer
	log      *logrus.Entry
	newNonce func() string
}

func NewIssuer(signer Signer, log *logrus.Entry) *Issuer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Issuer{
		signer:   signer,
		log:      log.WithField("component", "receipt"),
		newNonce: uuid.NewString,
	}
}

// Signer exposes the configured signer, e.g. to publish its key.
func (i *Issuer) Signer() Signer { return i.signer }

// Issue signs the settlement of a. bids is the auction's full ledger; retracted
// bids are left out of the hash list.
func (i *Issuer) Issue(_ context.Context, a *core.Auction, s core.Settlement, bids []core.Bid) (*auctionapi.SettlementReceipt, error) {
	payload := BuildPayload(a, s, bids, i.newNonce())

	data, err := auctionapi.EncodeReceiptPayload(payload)
	if err != nil {
		return nil, err
	}
	signed, err := i.signer.Sign(data)
	if err != nil {
		return nil, fmt.Errorf("failed to sign receipt for auction %s: %w", a.ID, err)
	}

	i.log.WithFields(logrus.Fields{
		"auction_id": a.ID,
		"outcome":    s.Outcome,
		"bids":       len(payload.BidHashes),
	}).Infof("Settlement receipt signed: %d bytes", len(signed))

	return &auctionapi.SettlementReceipt{
		Signer:     i.signer.Kind(),
		KeyID:      i.signer.KeyID(),
		COSEBase64: signed.EncodeBase64(),
	}, nil
}

// BuildPayload assembles the receipt body for a settled auction.
func BuildPayload(a *core.Auction, s core.Settlement, bids []core.Bid, nonce string) *auctionapi.ReceiptPayload {
	p := &auctionapi.ReceiptPayload{
		AuctionID:    a.ID,
		Outcome:      string(s.Outcome),
		ReserveMet:   s.ReserveMet,
		BidHashes:    core.ComputeBidHashes(bids, nonce),
		BidHashNonce: nonce,
	}
	if s.WinningBid != nil {
		p.WinningBidID = s.WinningBid.ID
	}
	if !s.FinalPrice.IsZero() || s.WinningBid != nil {
		p.FinalPrice = core.FormatMoney(s.FinalPrice)
	}
	if a.SettledAt != nil {
		p.SettledAt = a.SettledAt.UTC()
	}
	return p
}
