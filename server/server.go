package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloudx-io/openbid/auctionapi"
	"github.com/cloudx-io/openbid/core"
	"github.com/cloudx-io/openbid/engine"
	"github.com/cloudx-io/openbid/notify"
)

// Requests are read until the client half-closes; anything larger is rejected.
const maxRequestBytes = 1 << 20

const (
	DefaultMaxSubscribers = 256
	DefaultHeartbeat      = 15 * time.Second
)

// Server accepts one JSON request per connection and writes one JSON response,
// except for subscriptions, which stream events until the client goes away.
type Server struct {
	engine      *engine.Engine
	hub         *notify.Hub
	receiptKey  *auctionapi.ReceiptKeyResponse
	maxWorkers  int
	readTimeout time.Duration
	log         *logrus.Entry

	// subscriber channel size; zero means notify.DefaultBuffer
	subBuffer int
	// Subscriptions give their worker slot back and count against their own
	// cap instead. Idle streams get a heartbeat line so dead peers surface as
	// write errors.
	maxSubscribers int
	heartbeat      time.Duration
	subSlots       chan struct{}

	wg sync.WaitGroup
}

func NewServer(e *engine.Engine, hub *notify.Hub, receiptKey *auctionapi.ReceiptKeyResponse, maxWorkers int, readTimeout time.Duration, log *logrus.Entry) *Server {
	return &Server{
		engine:      e,
		hub:         hub,
		receiptKey:  receiptKey,
		maxWorkers:  maxWorkers,
		readTimeout: readTimeout,
		log:         log.WithField("component", "server"),

		maxSubscribers: DefaultMaxSubscribers,
		heartbeat:      DefaultHeartbeat,
	}
}

// Serve accepts connections until ctx is done, then closes ln and waits for
// in-flight connections to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		if err := ln.Close(); err != nil {
			s.log.Errorf("Failed to close listener: %v", err)
		}
	})
	defer stop()
	defer s.wg.Wait()

	semaphore := make(chan struct{}, s.maxWorkers)
	s.subSlots = make(chan struct{}, s.maxSubscribers)
	s.log.Infof("Listening on %s with %d max concurrent workers, %d max subscribers", ln.Addr(), s.maxWorkers, s.maxSubscribers)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info("Server stopped")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed: %w", err)
			}
			s.log.Errorf("Failed to accept connection: %v", err)
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				var once sync.Once
				release := func() { once.Do(func() { <-semaphore }) }
				defer release()
				s.handleConnection(ctx, c, release)
			}(conn)
		default:
			s.log.Warn("No workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				s.log.Errorf("Failed to close rejected connection: %v", err)
			}
		}
	}
}

// handleConnection serves one connection. release frees its worker slot early.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn, release func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("Panic recovered in handleConnection: %v", r)
		}
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Errorf("Failed to close connection: %v", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(conn, maxRequestBytes+1))
	if err != nil {
		s.log.Errorf("Failed to read request: %v", err)
		return
	}
	if n > maxRequestBytes {
		s.writeResponse(conn, failure("", core.Errorf(core.CodeInvalidRequest, "request exceeds %d bytes", maxRequestBytes)))
		return
	}

	var baseReq struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(buf.Bytes(), &baseReq); err != nil {
		s.log.Debugf("Failed to decode base request: %v", err)
		s.writeResponse(conn, failure("", core.Errorf(core.CodeInvalidRequest, "malformed request")))
		return
	}

	if baseReq.Type == auctionapi.TypeSubscribe {
		s.stream(ctx, conn, buf.Bytes(), release)
		return
	}

	s.writeResponse(conn, s.dispatch(ctx, baseReq.Type, buf.Bytes()))
}

func (s *Server) writeResponse(conn net.Conn, resp auctionapi.Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.log.Errorf("Failed to encode response: %v", err)
	}
}

// dispatch runs one request against the engine. Failures carry only the error
// code and reason; causes stay in the log.
func (s *Server) dispatch(ctx context.Context, reqType string, raw []byte) auctionapi.Response {
	log := s.log.WithField("type", reqType)
	log.Debug("Received request")

	data, err := s.route(ctx, reqType, raw)
	if err != nil {
		code := core.CodeOf(err)
		switch code {
		case core.CodePersistenceUnavailable, core.CodeUnavailable:
			log.WithField("code", code).Errorf("Request failed: %v", err)
		default:
			log.WithField("code", code).Debugf("Request rejected: %v", err)
		}
		return failure(reqType, err)
	}
	return auctionapi.Response{Type: reqType, Success: true, Data: data}
}

func failure(reqType string, err error) auctionapi.Response {
	return auctionapi.Response{
		Type:   reqType,
		Code:   string(core.CodeOf(err)),
		Reason: core.ReasonOf(err),
	}
}

func (s *Server) route(ctx context.Context, reqType string, raw []byte) (any, error) {
	now := s.engine.Now()

	switch reqType {
	case auctionapi.TypePing:
		return map[string]any{
			"message":   "openbid server is healthy",
			"timestamp": now.Unix(),
		}, nil

	case auctionapi.TypeCreateAuction:
		var req auctionapi.CreateAuctionRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		return s.engine.CreateAuction(ctx, engine.CreateAuctionRequest(req.Listing()))

	case auctionapi.TypePublishAuction:
		var req auctionapi.PublishAuctionRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		return s.engine.PublishAuction(ctx, req.AuctionID, req.SellerID)

	case auctionapi.TypePlaceBid:
		var req auctionapi.PlaceBidRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		if req.ClientTimestamp != nil {
			s.log.WithField("auction_id", req.AuctionID).Debugf("Client clock skew %v", now.Sub(*req.ClientTimestamp))
		}
		res, err := s.engine.PlaceBid(ctx, engine.PlaceBidRequest{
			AuctionID: req.AuctionID,
			BidderID:  req.BidderID,
			Amount:    req.Amount,
			MaxBid:    req.MaxBid,
		})
		if err != nil {
			return nil, err
		}
		return &auctionapi.BidResult{Bid: res.Bid, Auction: view(res.Auction, s.engine.Now()), Extended: res.Extended}, nil

	case auctionapi.TypeBuyNow:
		var req auctionapi.BuyNowRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		res, err := s.engine.BuyNow(ctx, req.AuctionID, req.BuyerID)
		if err != nil {
			return nil, err
		}
		return &auctionapi.BidResult{Bid: res.Bid, Auction: view(res.Auction, s.engine.Now())}, nil

	case auctionapi.TypeCancelAuction:
		var req auctionapi.CancelAuctionRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		return s.engine.CancelAuction(ctx, req.AuctionID, req.SellerID)

	case auctionapi.TypeRetractBid:
		var req auctionapi.RetractBidRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		res, err := s.engine.RetractBid(ctx, req.AuctionID, req.BidID, req.BidderID)
		if err != nil {
			return nil, err
		}
		out := &auctionapi.RetractResult{Bid: res.Bid, Auction: view(res.Auction, s.engine.Now())}
		if res.NewLeader != nil {
			out.NewLeaderID = res.NewLeader.ID
		}
		return out, nil

	case auctionapi.TypeGetAuction:
		var req auctionapi.GetAuctionRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		v, err := s.engine.GetAuction(ctx, req.AuctionID)
		if err != nil {
			return nil, err
		}
		return &auctionapi.AuctionView{Auction: v.Auction, TimeRemainingMs: v.TimeRemaining.Milliseconds()}, nil

	case auctionapi.TypeBidHistory:
		var req auctionapi.BidHistoryRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		return s.engine.GetBidHistory(ctx, req.AuctionID, req.IncludeRetracted)

	case auctionapi.TypeToggleWatch:
		var req auctionapi.ToggleWatchRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		watching, count, err := s.engine.ToggleWatch(ctx, req.AuctionID, req.UserID)
		if err != nil {
			return nil, err
		}
		return &auctionapi.WatchResult{Watching: watching, WatcherCount: count}, nil

	case auctionapi.TypeReceiptKey:
		if s.receiptKey == nil {
			return nil, core.Errorf(core.CodeNotAvailable, "settlement receipts are disabled")
		}
		return s.receiptKey, nil

	default:
		return nil, core.Errorf(core.CodeInvalidRequest, "unknown request type: %s", reqType)
	}
}

func decode(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return core.Errorf(core.CodeInvalidRequest, "malformed request: %v", err)
	}
	return nil
}

func view(a *core.Auction, now time.Time) *auctionapi.AuctionView {
	if a == nil {
		return nil
	}
	return &auctionapi.AuctionView{Auction: a, TimeRemainingMs: a.TimeRemaining(now).Milliseconds()}
}

// stream acknowledges the subscription and then writes one JSON event per
// line until the client disconnects, the server stops or the hub evicts the
// subscriber for falling behind. Once acknowledged it no longer holds a
// worker slot.
func (s *Server) stream(ctx context.Context, conn net.Conn, raw []byte, release func()) {
	var req auctionapi.SubscribeRequest
	if err := decode(raw, &req); err != nil {
		s.writeResponse(conn, failure(auctionapi.TypeSubscribe, err))
		return
	}
	if s.hub == nil {
		s.writeResponse(conn, failure(auctionapi.TypeSubscribe, core.Errorf(core.CodeNotAvailable, "event streaming is disabled")))
		return
	}

	select {
	case s.subSlots <- struct{}{}:
		defer func() { <-s.subSlots }()
	default:
		s.log.Warn("Subscriber limit reached, rejecting subscription")
		s.writeResponse(conn, failure(auctionapi.TypeSubscribe, core.Errorf(core.CodeNotAvailable, "too many subscribers")))
		return
	}

	sub := s.hub.Subscribe(req.AuctionID, s.subBuffer)
	defer s.hub.Unsubscribe(sub)

	log := s.log.WithField("auction_id", req.AuctionID)
	log.Info("Subscriber connected")

	enc := json.NewEncoder(conn)
	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(s.readTimeout))
		return enc.Encode(v)
	}
	if err := write(auctionapi.Response{Type: auctionapi.TypeSubscribe, Success: true}); err != nil {
		log.Debugf("Subscriber gone before ack: %v", err)
		return
	}
	release()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := write(auctionapi.Event{Topic: auctionapi.TopicHeartbeat, AuctionID: req.AuctionID, OccurredAt: s.engine.Now()}); err != nil {
				log.Debugf("Subscriber disconnected: %v", err)
				return
			}
		case evt, ok := <-sub.C:
			if !ok {
				log.Warn("Subscriber evicted")
				return
			}
			if err := write(evt); err != nil {
				log.Debugf("Subscriber disconnected: %v", err)
				return
			}
		}
	}
}
