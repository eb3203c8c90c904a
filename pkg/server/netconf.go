package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/beevik/etree"
	log "github.com/sirupsen/logrus"

	xmlcodec "github.com/ncxd/confd/pkg/codec/xml"
	"github.com/ncxd/confd/pkg/datastore"
	"github.com/ncxd/confd/pkg/engine"
	"github.com/ncxd/confd/pkg/netconf"
	"github.com/ncxd/confd/pkg/objtree"
)

// eomMarker is the RFC 6242 §4.3 end-of-message marker NETCONF 1.0
// framing uses to delimit one <rpc>/<rpc-reply> on the Unix socket.
const eomMarker = "]]>]]>"

type netconfListener struct {
	l        net.Listener
	srv      *Server
	sessions atomic.Uint64
}

func newNETCONFListener(socketPath string, s *Server) (*netconfListener, error) {
	_ = os.Remove(socketPath)
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	return &netconfListener{l: l, srv: s}, nil
}

func (n *netconfListener) close() { _ = n.l.Close() }

func (n *netconfListener) serve(ctx context.Context) error {
	for {
		conn, err := n.l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		id := n.sessions.Add(1)
		sess := &engine.Session{ID: strconv.FormatUint(id, 10), User: "netconf", Groups: []string{"netconf"}}
		go n.handleConn(ctx, conn, sess)
	}
}

// handleConn reads one framed <rpc> element at a time off conn, dispatches
// it, and writes back a framed <rpc-reply>, until the peer closes the
// connection or sends <close-session>.
func (n *netconfListener) handleConn(ctx context.Context, conn net.Conn, sess *engine.Session) {
	defer conn.Close()
	defer n.srv.engine.CloseSession(ctx, sess)

	reader := bufio.NewReader(conn)
	for {
		raw, err := readFramedMessage(reader)
		if err != nil {
			if err.Error() != "EOF" {
				log.Debugf("netconf session %s: %v", sess.ID, err)
			}
			return
		}
		doc := etree.NewDocument()
		if err := doc.ReadFromString(raw); err != nil {
			writeFramed(conn, rpcReplyError("", netconf.New(netconf.ErrorTypeRPC, netconf.ErrorTagMalformedMessage, "%v", err)))
			continue
		}
		root := doc.Root()
		if root == nil {
			continue
		}
		if root.Tag == "hello" {
			continue
		}
		reply := n.dispatch(ctx, sess, root)
		writeFramed(conn, reply)
		if root.SelectElement("close-session") != nil {
			return
		}
	}
}

func readFramedMessage(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		line, err := r.ReadString('\n')
		sb.WriteString(line)
		if strings.Contains(sb.String(), eomMarker) {
			return strings.Replace(sb.String(), eomMarker, "", 1), nil
		}
		if err != nil {
			return "", err
		}
	}
}

func writeFramed(conn net.Conn, body string) {
	_, _ = conn.Write([]byte(body + "\n" + eomMarker + "\n"))
}

// dispatch maps a decoded <rpc> child element name to the matching
// pkg/engine operation and renders the result (or error) as an
// <rpc-reply> body.
func (n *netconfListener) dispatch(ctx context.Context, sess *engine.Session, rpc *etree.Element) string {
	msgID := rpc.SelectAttrValue("message-id", "")
	e := n.srv.engine

	op := firstChildElement(rpc)
	if op == nil {
		return rpcReplyError(msgID, netconf.New(netconf.ErrorTypeRPC, netconf.ErrorTagMissingElement, "rpc has no operation element"))
	}

	switch op.Tag {
	case "get", "get-config":
		source := datastore.Running
		filter := ""
		if op.Tag == "get-config" {
			source = sourceFromElement(op)
		}
		if f := op.SelectElement("filter"); f != nil {
			filter = f.SelectAttrValue("select", f.Text())
		}
		tree, err := e.GetConfig(ctx, sess, source, filter)
		if err != nil {
			return rpcReplyError(msgID, err)
		}
		return rpcReplyData(msgID, tree)

	case "edit-config":
		target := targetFromElement(op)
		cfg := op.SelectElement("config")
		if cfg == nil {
			return rpcReplyError(msgID, netconf.New(netconf.ErrorTypeRPC, netconf.ErrorTagMissingElement, "edit-config missing <config>"))
		}
		defaultOp, testOpt, errOpt := editConfigOptions(op)
		if err := e.EditConfig(ctx, sess, target, cfg, defaultOp, testOpt, errOpt); err != nil {
			return rpcReplyError(msgID, err)
		}
		return rpcReplyOK(msgID)

	case "copy-config":
		target := targetFromElement(op)
		source := sourceFromElement(op)
		if err := e.CopyConfig(ctx, sess, target, source); err != nil {
			return rpcReplyError(msgID, err)
		}
		return rpcReplyOK(msgID)

	case "delete-config":
		target := targetFromElement(op)
		if err := e.DeleteConfig(ctx, sess, target); err != nil {
			return rpcReplyError(msgID, err)
		}
		return rpcReplyOK(msgID)

	case "lock":
		if err := e.Lock(ctx, sess, targetFromElement(op)); err != nil {
			return rpcReplyError(msgID, err)
		}
		return rpcReplyOK(msgID)

	case "unlock":
		if err := e.Unlock(ctx, sess, targetFromElement(op)); err != nil {
			return rpcReplyError(msgID, err)
		}
		return rpcReplyOK(msgID)

	case "validate":
		res, err := e.Validate(ctx, sess, sourceFromElement(op))
		if err != nil {
			return rpcReplyError(msgID, err)
		}
		if len(res.Errors) > 0 {
			return rpcReplyError(msgID, res.Errors[0])
		}
		return rpcReplyOK(msgID)

	case "commit":
		res, err := e.Commit(ctx, sess)
		if err != nil {
			return rpcReplyError(msgID, err)
		}
		if len(res.Errors) > 0 {
			return rpcReplyError(msgID, res.Errors[0])
		}
		return rpcReplyOK(msgID)

	case "discard-changes":
		if err := e.DiscardChanges(ctx, sess); err != nil {
			return rpcReplyError(msgID, err)
		}
		return rpcReplyOK(msgID)

	case "kill-session":
		targetID := ""
		if se := op.SelectElement("session-id"); se != nil {
			targetID = se.Text()
		}
		if err := e.KillSession(ctx, sess, targetID); err != nil {
			return rpcReplyError(msgID, err)
		}
		return rpcReplyOK(msgID)

	case "close-session":
		return rpcReplyOK(msgID)

	default:
		return rpcReplyError(msgID, netconf.New(netconf.ErrorTypeProtocol, netconf.ErrorTagOperationNotSupported, "unknown operation %q", op.Tag))
	}
}

func firstChildElement(e *etree.Element) *etree.Element {
	for _, c := range e.ChildElements() {
		return c
	}
	return nil
}

func targetFromElement(op *etree.Element) datastore.DBName {
	if t := op.SelectElement("target"); t != nil {
		if c := firstChildElement(t); c != nil {
			return datastore.DBName(c.Tag)
		}
	}
	return datastore.Candidate
}

func sourceFromElement(op *etree.Element) datastore.DBName {
	if s := op.SelectElement("source"); s != nil {
		if c := firstChildElement(s); c != nil {
			return datastore.DBName(c.Tag)
		}
	}
	return datastore.Running
}

// editConfigOptions reads the <default-operation>, <test-option> and
// <error-option> parameters off an <edit-config> RPC element (RFC 6241
// §7.2). A missing element is passed through as the zero value; Context.
// EditConfig substitutes RFC 6241's own defaults (merge, test-then-set,
// stop-on-error) for those.
func editConfigOptions(op *etree.Element) (xmlcodec.Operation, engine.TestOption, engine.ErrorOption) {
	var defaultOp xmlcodec.Operation
	if el := op.SelectElement("default-operation"); el != nil {
		defaultOp = xmlcodec.Operation(el.Text())
	}
	var testOpt engine.TestOption
	if el := op.SelectElement("test-option"); el != nil {
		testOpt = engine.TestOption(el.Text())
	}
	var errOpt engine.ErrorOption
	if el := op.SelectElement("error-option"); el != nil {
		errOpt = engine.ErrorOption(el.Text())
	}
	return defaultOp, testOpt, errOpt
}

// newRPCReply builds an empty <rpc-reply message-id="..."> in its own
// document so every caller below only has to fill in the body; etree
// escapes attribute and text content on write, which the previous
// fmt.Sprintf-based rendering here did not.
func newRPCReply(msgID string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	reply := doc.CreateElement("rpc-reply")
	reply.CreateAttr("message-id", msgID)
	reply.CreateAttr("xmlns", "urn:ietf:params:xml:ns:netconf:base:1.0")
	return doc, reply
}

func rpcReplyOK(msgID string) string {
	doc, reply := newRPCReply(msgID)
	reply.CreateElement("ok")
	out, _ := doc.WriteToString()
	return out
}

func rpcReplyData(msgID string, tree *objtree.Tree) string {
	doc, reply := newRPCReply(msgID)
	data := reply.CreateElement("data")
	if err := xmlcodec.EncodeChildrenInto(tree, tree.Root(), data, xmlcodec.EncodeOptions{HonorNamespace: true}); err != nil {
		return rpcReplyError(msgID, err)
	}
	out, _ := doc.WriteToString()
	return out
}

func rpcReplyError(msgID string, err error) string {
	doc, reply := newRPCReply(msgID)
	renderRPCError(reply, err)
	out, _ := doc.WriteToString()
	return out
}

// renderRPCError appends an RFC 6241 Appendix A <rpc-error> element to
// into, classifying a plain error as an opaque operation-failed/
// application error when it didn't already come wrapped as a
// *netconf.RPCError.
func renderRPCError(into *etree.Element, err error) {
	re, ok := netconf.AsRPCError(err)
	if !ok {
		re = netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagOperationFailed, "%v", err)
	}
	rpcErr := into.CreateElement("rpc-error")
	rpcErr.CreateElement("error-type").SetText(string(re.Type))
	rpcErr.CreateElement("error-tag").SetText(string(re.Tag))
	severity := re.Severity
	if severity == "" {
		severity = netconf.SeverityError
	}
	rpcErr.CreateElement("error-severity").SetText(string(severity))
	if re.Path != "" {
		rpcErr.CreateElement("error-path").SetText(re.Path)
	}
	rpcErr.CreateElement("error-message").SetText(re.Message)
	if len(re.Info) > 0 {
		info := rpcErr.CreateElement("error-info")
		for k, v := range re.Info {
			info.CreateElement(k).SetText(v)
		}
	}
}
