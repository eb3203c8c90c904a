package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/beevik/etree"
	"github.com/gorilla/mux"

	jsoncodec "github.com/ncxd/confd/pkg/codec/json"
	xmlcodec "github.com/ncxd/confd/pkg/codec/xml"
	"github.com/ncxd/confd/pkg/datastore"
	"github.com/ncxd/confd/pkg/engine"
	"github.com/ncxd/confd/pkg/netconf"
	"github.com/ncxd/confd/pkg/objtree"
	"github.com/ncxd/confd/pkg/yang"
)

func (s *Server) registerRESTCONFRoutes() {
	s.router.HandleFunc("/.well-known/host-meta", s.handleHostMeta).Methods(http.MethodGet)
	s.router.HandleFunc("/restconf/data", s.handleData).Methods(http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete)
	s.router.HandleFunc("/restconf/data/{path:.*}", s.handleData).Methods(http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete)
	s.router.HandleFunc("/restconf/operations/{operation}", s.handleOperation).Methods(http.MethodPost)
	s.router.HandleFunc("/restconf/streams/{stream}", s.handleStream).Methods(http.MethodGet)
}

func (s *Server) handleHostMeta(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xrd+xml")
	fmt.Fprint(w, `<?xml version="1.0"?><XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0"><Link rel="restconf" href="/restconf"/></XRD>`)
}

// sessionFor resolves the caller identity for a RESTCONF request. Actual
// authentication (TLS client cert, HTTP auth) happens upstream of this
// front-end per spec.md's framing of transport as an external
// collaborator; this engine trusts the X-Remote-User header the
// terminating proxy is expected to set, falling back to a default
// identity for unauthenticated local testing.
func (s *Server) sessionFor(r *http.Request) *engine.Session {
	user := r.Header.Get("X-Remote-User")
	if user == "" {
		user = "restconf"
	}
	return &engine.Session{ID: "restconf-" + user, User: user, Groups: []string{user}}
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(r)
	path := mux.Vars(r)["path"]
	filter, err := restconfPathToXPath(s.engine.Schema, path)
	if err != nil {
		writeRESTCONFError(w, http.StatusBadRequest, netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagInvalidValue, "%v", err))
		return
	}

	switch r.Method {
	case http.MethodGet:
		target := datastore.Running
		if ds := r.URL.Query().Get("datastore"); ds != "" {
			target = datastore.DBName(ds)
		}
		tree, err := s.engine.GetConfig(r.Context(), sess, target, filter)
		if err != nil {
			writeRESTCONFErrorFromErr(w, err)
			return
		}
		writeJSONTree(w, tree)

	case http.MethodPut, http.MethodPost:
		elem, err := decodeRESTCONFBody(r)
		if err != nil {
			writeRESTCONFError(w, http.StatusBadRequest, netconf.New(netconf.ErrorTypeRPC, netconf.ErrorTagMalformedMessage, "%v", err))
			return
		}
		// PUT replaces the addressed resource (RFC 8040 §4.5); POST to a
		// collection creates a new child (§4.4). Both map onto an
		// edit-config operation attribute the merge step already knows how
		// to apply.
		if r.Method == http.MethodPut {
			elem.CreateAttr("nc:operation", "replace")
		} else {
			elem.CreateAttr("nc:operation", "create")
		}
		wrapper := etree.NewElement("config")
		wrapper.AddChild(elem)
		// RESTCONF's PUT/POST have no test-option/error-option of their
		// own; every node here already carries an explicit nc:operation
		// attribute, so defaultOp never applies. Apply straight away, RFC
		// 8040's synchronous request/response model.
		if err := s.engine.EditConfig(r.Context(), sess, datastore.Candidate, wrapper, xmlcodec.OperationMerge, engine.TestSet, engine.StopOnError); err != nil {
			writeRESTCONFErrorFromErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		wrapper := etree.NewElement("config")
		target := etree.NewElement(lastPathSegment(path))
		target.CreateAttr("nc:operation", "delete")
		wrapper.AddChild(target)
		if err := s.engine.EditConfig(r.Context(), sess, datastore.Candidate, wrapper, xmlcodec.OperationMerge, engine.TestSet, engine.StopOnError); err != nil {
			writeRESTCONFErrorFromErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleOperation implements POST /restconf/operations/{operation},
// RESTCONF's RPC invocation resource (RFC 8040 §3.6), routed to the same
// internal operation set the NETCONF front-end dispatches.
func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(r)
	op := mux.Vars(r)["operation"]
	op = lastPathSegment(op)

	switch op {
	case "commit":
		res, err := s.engine.Commit(r.Context(), sess)
		if err != nil {
			writeRESTCONFErrorFromErr(w, err)
			return
		}
		if len(res.Errors) > 0 {
			writeRESTCONFErrorFromErr(w, res.Errors[0])
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "discard-changes":
		if err := s.engine.DiscardChanges(r.Context(), sess); err != nil {
			writeRESTCONFErrorFromErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "validate":
		res, err := s.engine.Validate(r.Context(), sess, datastore.Candidate)
		if err != nil {
			writeRESTCONFErrorFromErr(w, err)
			return
		}
		if len(res.Errors) > 0 {
			writeRESTCONFErrorFromErr(w, res.Errors[0])
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeRESTCONFError(w, http.StatusNotImplemented, netconf.New(netconf.ErrorTypeProtocol, netconf.ErrorTagOperationNotSupported, "unknown operation %q", op))
	}
}

// handleStream implements RESTCONF notification delivery (RFC 8040 §6):
// text/event-stream with "data:" payload lines, no "id:" field, matching
// spec.md §6's wire description.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	streamName := mux.Vars(r)["stream"]
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := s.engine.Notify.Subscribe(streamName, r.URL.Query().Get("filter"), nil, nil)
	if err != nil {
		writeRESTCONFError(w, http.StatusBadRequest, netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagInvalidValue, "%v", err))
		return
	}
	defer s.engine.Notify.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprint(w, "retry: 3000\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done:
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			payload, _ := jsoncodec.Encode(ev.Payload, ev.Payload.Root())
			body, _ := json.Marshal(payload)
			fmt.Fprintf(w, "data: %s\n\n", body)
			flusher.Flush()
		}
	}
}

func decodeRESTCONFBody(r *http.Request) (*etree.Element, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "json") {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return nil, err
		}
		return jsonPayloadToElement(payload)
	}
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r.Body); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("empty RESTCONF request body")
	}
	return root, nil
}

// jsonPayloadToElement performs a minimal RFC 7951 JSON-body-to-XML-element
// conversion for a single top-level member, reusing pkg/codec/json's
// scalar rendering is not necessary here since etree only needs element
// names and text bodies, not typed values.
func jsonPayloadToElement(payload map[string]any) (*etree.Element, error) {
	for k, v := range payload {
		name := k
		if i := strings.IndexByte(k, ':'); i >= 0 {
			name = k[i+1:]
		}
		elem := etree.NewElement(name)
		if err := fillElement(elem, v); err != nil {
			return nil, err
		}
		return elem, nil
	}
	return nil, fmt.Errorf("empty RESTCONF request body")
}

func fillElement(elem *etree.Element, v any) error {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			name := k
			if i := strings.IndexByte(k, ':'); i >= 0 {
				name = k[i+1:]
			}
			childElem := elem.CreateElement(name)
			if err := fillElement(childElem, child); err != nil {
				return err
			}
		}
	case []any:
		for _, entry := range val {
			return fillElement(elem, entry)
		}
	default:
		elem.SetText(fmt.Sprintf("%v", val))
	}
	return nil
}

func writeJSONTree(w http.ResponseWriter, tree *objtree.Tree) {
	payload, err := jsoncodec.Encode(tree, tree.Root())
	if err != nil {
		writeRESTCONFError(w, http.StatusInternalServerError, netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagOperationFailed, "%v", err))
		return
	}
	w.Header().Set("Content-Type", "application/yang-data+json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRESTCONFErrorFromErr(w http.ResponseWriter, err error) {
	re, ok := netconf.AsRPCError(err)
	if !ok {
		writeRESTCONFError(w, http.StatusInternalServerError, netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagOperationFailed, "%v", err))
		return
	}
	writeRESTCONFError(w, statusForTag(re.Tag), re)
}

// writeRESTCONFError renders a RESTCONF error object (RFC 8040 §7.1),
// which carries the same error-type/tag/message triple as a NETCONF
// <rpc-error>, wrapped in the "ietf-restconf:errors" container.
func writeRESTCONFError(w http.ResponseWriter, status int, re *netconf.RPCError) {
	w.Header().Set("Content-Type", "application/yang-data+json")
	w.WriteHeader(status)
	body := map[string]any{
		"ietf-restconf:errors": map[string]any{
			"error": []map[string]any{{
				"error-type":    re.Type,
				"error-tag":     re.Tag,
				"error-message": re.Message,
			}},
		},
	}
	_ = json.NewEncoder(w).Encode(body)
}

func statusForTag(tag netconf.ErrorTag) int {
	switch tag {
	case netconf.ErrorTagAccessDenied:
		return http.StatusForbidden
	case netconf.ErrorTagDataMissing:
		return http.StatusNotFound
	case netconf.ErrorTagDataExists:
		return http.StatusConflict
	case netconf.ErrorTagLockDenied, netconf.ErrorTagInUse, netconf.ErrorTagResourceDenied:
		return http.StatusConflict
	case netconf.ErrorTagInvalidValue, netconf.ErrorTagMissingElement, netconf.ErrorTagBadElement, netconf.ErrorTagMalformedMessage:
		return http.StatusBadRequest
	case netconf.ErrorTagOperationNotSupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func lastPathSegment(path string) string {
	segs := strings.Split(strings.TrimSuffix(path, "/"), "/")
	last := segs[len(segs)-1]
	if i := strings.IndexByte(last, '='); i >= 0 {
		last = last[:i]
	}
	if i := strings.IndexByte(last, ':'); i >= 0 {
		last = last[i+1:]
	}
	return last
}

// restconfPathToXPath translates a RESTCONF data-resource path
// ("module:container/list=key1,key2/leaf", RFC 8040 §3.5.3) into the
// XPath location path pkg/engine's filter step evaluates, resolving each
// list's key leaf names from schema so multi-key predicates line up by
// position.
func restconfPathToXPath(schema *yang.Schema, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	node := schema.Root()
	var sb strings.Builder
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		name := seg
		var keyValues []string
		if i := strings.IndexByte(seg, '='); i >= 0 {
			name = seg[:i]
			keyValues = strings.Split(seg[i+1:], ",")
		}
		if i := strings.IndexByte(name, ':'); i >= 0 {
			name = name[i+1:]
		}
		child, ok := node.FindChild(name, "")
		if !ok {
			return "", fmt.Errorf("unknown path element %q", name)
		}
		node = child
		fmt.Fprintf(&sb, "/%s", name)
		if len(keyValues) > 0 {
			keys := node.ListKeys()
			for i, kv := range keyValues {
				if i >= len(keys) {
					break
				}
				fmt.Fprintf(&sb, "[%s='%s']", keys[i], kv)
			}
		}
	}
	return sb.String(), nil
}
