package ws

import (
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"claimstore.ai/internal/command"
	"claimstore.ai/internal/protocol"
	"claimstore.ai/internal/store"
)

// Server is the host bridge. A host connection sends HELLO, receives WELCOME,
// then exchanges COMMAND/RESULT pairs. Commands on one connection are handled
// in order, so the host must apply a RESULT before sending the next COMMAND for
// the same player. A COMMAND for a player whose purchase is still running on
// another connection gets E_BUSY and no updates.
type Server struct {
	shop       *store.Shop
	dispatcher *command.Dispatcher
	log        *log.Logger

	loopbackOnly bool
	upgrader     websocket.Upgrader
}

type Options struct {
	// LoopbackOnly rejects connections from non-loopback addresses.
	LoopbackOnly bool
	// AllowedOrigin, when set, is the only Origin header accepted. Requests without an Origin pass.
	AllowedOrigin string
}

func NewServer(shop *store.Shop, d *command.Dispatcher, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	origin := strings.TrimSpace(opts.AllowedOrigin)
	return &Server{
		shop:         shop,
		dispatcher:   d,
		log:          logger,
		loopbackOnly: opts.LoopbackOnly,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				h := r.Header.Get("Origin")
				return origin == "" || h == "" || h == origin
			},
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if s.loopbackOnly && !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		session, host := s.handshake(conn)
		if session == "" {
			return
		}
		s.log.Printf("bridge connected session=%s host=%q remote=%s", session, host, r.RemoteAddr)
		defer s.log.Printf("bridge disconnected session=%s", session)

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			res, ok := s.handleMessage(msg)
			if !ok {
				continue
			}
			if err := writeJSON(conn, res); err != nil {
				return
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (session, host string) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", ""
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return "", ""
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, "bad HELLO")
		return "", ""
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", ""
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return "", ""
	}

	session = uuid.NewString()
	if err := writeJSON(conn, s.welcome(session)); err != nil {
		return "", ""
	}
	return session, hello.ServerName
}

func (s *Server) welcome(session string) protocol.WelcomeMsg {
	cfg := s.shop.Config()
	w := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       session,
		CurrencyItem:    cfg.CurrencyItem,
	}
	for _, c := range s.dispatcher.Commands() {
		if c.Offer == "" {
			continue
		}
		o, ok := cfg.Offer(c.Offer)
		if !ok {
			continue
		}
		w.Offers = append(w.Offers, protocol.OfferInfo{
			ID:            c.Offer,
			Command:       "/" + c.Name,
			Quota:         string(store.QuotaFor(c.Offer)),
			Pricing:       string(o.Pricing),
			BlocksPerUnit: o.BlocksPerUnit,
			PricePerUnit:  o.PricePerUnit,
		})
	}
	return w
}

// handleMessage returns the RESULT for one inbound message, or false when nothing should be sent.
func (s *Server) handleMessage(msg []byte) (protocol.ResultMsg, bool) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeCommand {
		return protocol.ResultMsg{}, false
	}

	var cmd protocol.CommandMsg
	_ = json.Unmarshal(msg, &cmd)
	res := protocol.ResultMsg{Type: protocol.TypeResult, RequestID: cmd.RequestID}

	if err := protocol.Validate(protocol.TypeCommand, msg); err != nil {
		return badRequest(res, err), true
	}
	p, err := newSnapshotPlayer(cmd.Player)
	if err != nil {
		return badRequest(res, err), true
	}

	reply := s.dispatcher.Handle(p, cmd.Text)
	res.OK = reply.OK
	res.Code = reply.Code
	res.Message = reply.Notice.Text
	res.ChatType = chatType(reply.Notice.Kind)
	res.Sound = reply.Notice.Sound
	if reply.Receipt != nil {
		res.ReceiptID = reply.Receipt.ID
	}
	res.SlotUpdates = p.slotUpdates()
	res.QuotaUpdates = p.quotaUpdates()
	return res, true
}

func badRequest(res protocol.ResultMsg, err error) protocol.ResultMsg {
	res.Code = protocol.ErrProtoBadRequest
	res.Message = err.Error()
	res.ChatType = protocol.ChatError
	return res
}

func chatType(kind string) string {
	switch kind {
	case store.NoticeSuccess:
		return protocol.ChatSuccess
	case store.NoticeError:
		return protocol.ChatError
	default:
		return protocol.ChatNotification
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// IsLoopbackRemote reports whether an http.Request RemoteAddr is a loopback address.
func IsLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
