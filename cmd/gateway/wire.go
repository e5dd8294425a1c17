package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	ber "github.com/go-asn1-ber/asn1-ber"

	"github.com/z3950gw/gateway/internal/diag"
	"github.com/z3950gw/gateway/internal/gateway"
	"github.com/z3950gw/gateway/internal/rpn"
	"github.com/z3950gw/gateway/internal/session"
)

// Z39.50 APDU tags this minimal wire loop recognizes. The full protocol's
// bit-string options negotiation, explain service, and extended services
// are out of scope (spec.md section 1); this loop exists to demonstrate the
// external-codec boundary ZOOM normally hides, not to be a conformant
// implementation.
const (
	tagInitRequest     = 20
	tagInitResponse    = 21
	tagSearchRequest   = 22
	tagSearchResponse  = 23
	tagPresentRequest  = 24
	tagPresentResponse = 25
	tagScanRequest     = 35
	tagScanResponse    = 36
	tagCloseRequest    = 47
)

// connHandler serves one client connection's full session lifetime.
type connHandler struct {
	srv    *gateway.Server
	sess   *session.Session
	logger *slog.Logger
}

func serveConn(ctx context.Context, srv *gateway.Server, logger *slog.Logger, conn net.Conn) {
	defer conn.Close()
	h := &connHandler{srv: srv, sess: srv.NewSession(), logger: logger}
	logger.Info("connection opened", "remote", conn.RemoteAddr().String(), "session", h.sess.ID)

	for {
		pkt, err := ber.ReadPacket(conn)
		if err != nil {
			logger.Info("connection closed", "session", h.sess.ID, "error", err)
			_ = h.srv.Close(ctx, h.sess)
			return
		}
		h.dispatch(ctx, conn, pkt)
	}
}

func (h *connHandler) dispatch(ctx context.Context, conn net.Conn, pkt *ber.Packet) {
	switch pkt.Tag {
	case tagInitRequest:
		h.handleInit(ctx, conn, pkt)
	case tagSearchRequest:
		h.handleSearch(ctx, conn, pkt)
	case tagPresentRequest:
		h.handlePresent(ctx, conn, pkt)
	case tagScanRequest:
		h.handleScan(ctx, conn, pkt)
	case tagCloseRequest:
		_ = h.srv.Close(ctx, h.sess)
	default:
		h.logger.Warn("unrecognized PDU tag", "tag", pkt.Tag, "session", h.sess.ID)
	}
}

func (h *connHandler) handleInit(ctx context.Context, conn net.Conn, pkt *ber.Packet) {
	var user, pass string
	for _, c := range pkt.Children {
		if c.ClassType == ber.ClassContext && c.Tag == 110 {
			user = string(c.Data.Bytes())
		}
		if c.ClassType == ber.ClassContext && c.Tag == 111 {
			pass = string(c.Data.Bytes())
		}
	}

	reply, derr := h.srv.Init(ctx, h.sess, gateway.InitRequest{User: user, Password: pass})

	resp := ber.Encode(ber.ClassContext, ber.TypeConstructed, tagInitResponse, nil, "InitResponse")
	ok := derr == nil
	resp.AppendChild(ber.NewBoolean(ber.ClassContext, ber.TypePrimitive, 12, ok, "Result"))
	if ok {
		resp.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 110, reply.ImplementationID, "ImpId"))
		resp.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 111, reply.ImplementationName, "ImpName"))
		resp.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 112, reply.ImplementationVersion, "ImpVersion"))
	} else {
		appendDiagnostic(resp, derr)
	}
	_, _ = conn.Write(resp.Bytes())
}

func (h *connHandler) handleSearch(ctx context.Context, conn net.Conn, pkt *ber.Packet) {
	var dbName, setName string
	var queryNode *ber.Packet
	for _, c := range pkt.Children {
		switch {
		case c.ClassType == ber.ClassContext && c.Tag == 3:
			dbName = string(c.Data.Bytes())
		case c.ClassType == ber.ClassContext && c.Tag == 17:
			setName = string(c.Data.Bytes())
		case c.ClassType == ber.ClassContext && c.Tag == 21:
			queryNode = c
		}
	}
	if setName == "" {
		setName = "default"
	}

	resp := ber.Encode(ber.ClassContext, ber.TypeConstructed, tagSearchResponse, nil, "SearchResponse")
	query, err := decodeRPN(queryNode)
	if err != nil {
		appendDiagnostic(resp, errToDiag(err))
		_, _ = conn.Write(resp.Bytes())
		return
	}

	reply, derr := h.srv.Search(ctx, h.sess, gateway.SearchRequest{
		Databases: []string{dbName},
		SetName:   setName,
		Query:     query,
	})
	if derr != nil {
		appendDiagnostic(resp, derr)
		_, _ = conn.Write(resp.Bytes())
		return
	}
	resp.AppendChild(ber.NewInteger(ber.ClassContext, ber.TypePrimitive, 23, int64(reply.Hits), "ResultCount"))
	_, _ = conn.Write(resp.Bytes())
}

func (h *connHandler) handlePresent(ctx context.Context, conn net.Conn, pkt *ber.Packet) {
	var setName string
	start, number := 1, 0
	for _, c := range pkt.Children {
		switch {
		case c.ClassType == ber.ClassContext && c.Tag == 17:
			setName = string(c.Data.Bytes())
		case c.ClassType == ber.ClassContext && c.Tag == 29:
			if v, ok := c.Value.(int64); ok {
				start = int(v)
			}
		case c.ClassType == ber.ClassContext && c.Tag == 30:
			if v, ok := c.Value.(int64); ok {
				number = int(v)
			}
		}
	}
	if setName == "" {
		setName = "default"
	}

	resp := ber.Encode(ber.ClassContext, ber.TypeConstructed, tagPresentResponse, nil, "PresentResponse")
	if derr := h.srv.Present(ctx, h.sess, gateway.PresentRequest{SetName: setName, Start: start, Number: number}); derr != nil {
		appendDiagnostic(resp, derr)
		_, _ = conn.Write(resp.Bytes())
		return
	}

	recordsWrapper := ber.Encode(ber.ClassContext, ber.TypeConstructed, 28, nil, "Records")
	for i := 0; i < number; i++ {
		fr, derr := h.srv.Fetch(ctx, h.sess, gateway.FetchRequest{SetName: setName, Offset: start + i, Syntax: "xml"})
		if derr != nil {
			appendDiagnostic(resp, derr)
			break
		}
		rec := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Record")
		rec.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, string(fr.Record), "Data"))
		recordsWrapper.AppendChild(rec)
	}
	resp.AppendChild(recordsWrapper)
	_, _ = conn.Write(resp.Bytes())
}

func (h *connHandler) handleScan(ctx context.Context, conn net.Conn, pkt *ber.Packet) {
	var dbName string
	var queryNode *ber.Packet
	number, position, stepSize := 20, 1, 0
	for _, c := range pkt.Children {
		switch {
		case c.ClassType == ber.ClassContext && c.Tag == 3:
			dbName = string(c.Data.Bytes())
		case c.ClassType == ber.ClassContext && c.Tag == 21:
			queryNode = c
		case c.ClassType == ber.ClassContext && c.Tag == 6:
			if v, ok := c.Value.(int64); ok {
				number = int(v)
			}
		case c.ClassType == ber.ClassContext && c.Tag == 5:
			if v, ok := c.Value.(int64); ok {
				position = int(v)
			}
		}
	}

	resp := ber.Encode(ber.ClassContext, ber.TypeConstructed, tagScanResponse, nil, "ScanResponse")
	query, err := decodeRPN(queryNode)
	if err != nil {
		appendDiagnostic(resp, errToDiag(err))
		_, _ = conn.Write(resp.Bytes())
		return
	}

	reply, derr := h.srv.Scan(ctx, h.sess, gateway.ScanRequest{
		Databases: []string{dbName},
		Query:     query,
		Number:    number,
		Position:  position,
		StepSize:  stepSize,
	})
	if derr != nil {
		appendDiagnostic(resp, derr)
		_, _ = conn.Write(resp.Bytes())
		return
	}
	entriesWrapper := ber.Encode(ber.ClassContext, ber.TypeConstructed, 7, nil, "Entries")
	for _, e := range reply.Entries {
		entry := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Entry")
		entry.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 1, e.Term, "Term"))
		entry.AppendChild(ber.NewInteger(ber.ClassContext, ber.TypePrimitive, 2, int64(e.Occurrence), "Occurrence"))
		entriesWrapper.AppendChild(entry)
	}
	resp.AppendChild(entriesWrapper)
	_, _ = conn.Write(resp.Bytes())
}

// decodeRPN mirrors the recursive Operand/RPNRpnOp walk a real Z39.50
// codec performs: tag 0 is a leaf operand (attribute list + term), tag 1 is
// a boolean combination of two further RPNStructures.
func decodeRPN(p *ber.Packet) (rpn.Node, error) {
	if p == nil {
		return nil, fmt.Errorf("missing query node")
	}
	if p.ClassType == ber.ClassContext && p.Tag == 0 {
		return decodeOperand(p)
	}
	if p.ClassType == ber.ClassContext && p.Tag == 1 {
		if len(p.Children) < 3 {
			return nil, fmt.Errorf("complex RPN missing children")
		}
		left, err := decodeRPN(p.Children[0])
		if err != nil {
			return nil, err
		}
		right, err := decodeRPN(p.Children[1])
		if err != nil {
			return nil, err
		}
		op := int64(0)
		if opNode := p.Children[2]; len(opNode.Children) > 0 {
			if v, ok := opNode.Children[0].Value.(int64); ok {
				op = v
			}
		}
		switch op {
		case 0:
			return rpn.And{Left: left, Right: right}, nil
		case 1:
			return rpn.Or{Left: left, Right: right}, nil
		default:
			return rpn.AndNot{Left: left, Right: right}, nil
		}
	}
	return nil, fmt.Errorf("unknown RPN tag %d", p.Tag)
}

func decodeOperand(operand *ber.Packet) (rpn.Node, error) {
	if len(operand.Children) == 0 {
		return nil, fmt.Errorf("empty operand")
	}
	apt := operand.Children[0]

	var term rpn.Term
	for _, child := range apt.Children {
		switch child.Tag {
		case 44: // AttributeList
			for _, attr := range child.Children {
				if len(attr.Children) < 2 {
					continue
				}
				t, _ := attr.Children[0].Value.(int64)
				v, _ := attr.Children[1].Value.(int64)
				term.Attrs = append(term.Attrs, rpn.Attr{Type: int(t), Value: int(v)})
			}
		case 45: // Term
			term.Term = string(child.Data.Bytes())
		}
	}
	if term.Term == "" {
		return nil, fmt.Errorf("operand has no term")
	}
	return term, nil
}

func appendDiagnostic(resp *ber.Packet, d *diag.Error) {
	resp.AppendChild(ber.NewBoolean(ber.ClassContext, ber.TypePrimitive, 22, false, "Status"))
	resp.AppendChild(ber.NewInteger(ber.ClassContext, ber.TypePrimitive, 116, int64(d.Code), "DiagCode"))
	resp.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 117, d.AddInfo, "AddInfo"))
}

func errToDiag(err error) *diag.Error {
	return diag.New(diag.Code100BackendGeneral, err.Error())
}
