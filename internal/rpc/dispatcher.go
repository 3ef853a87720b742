// Copyright (c) 2026 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/beevik/etree"
	"github.com/rs/zerolog/log"

	"cwmpd.io/cwmpd/internal/backend"
	"cwmpd.io/cwmpd/internal/soap"
)

// ErrInvalidArguments is returned by a handler when the request lacks a
// mandatory argument.
var ErrInvalidArguments = errors.New("invalid arguments")

// Gateway executes parameter reads, writes and device actions.
type Gateway interface {
	Get(ctx context.Context, action, name string) (string, error)
	QueueWrite(ctx context.Context, action, name, value string) error
	ExecuteWrites(ctx context.Context) error
	Discard() error
	RunSimpleAction(ctx context.Context, action string) error
	RunDownload(ctx context.Context, url, size string) error
}

// Hooks lets the owner of the session react to parameters written by the
// ACS before the next message is processed.
type Hooks interface {
	ParameterWritten(name, value string)
	Reload(ctx context.Context)
}

type nopHooks struct{}

func (nopHooks) ParameterWritten(string, string) {}
func (nopHooks) Reload(context.Context)          {}

// Handler serves one ACS request. It returns the method response element,
// built detached from the outgoing document.
type Handler func(ctx context.Context, req *etree.Element) (*etree.Element, error)

type method struct {
	handler Handler
	name    string
}

type dispatcherStats struct {
	handled     atomic.Int64
	faults      atomic.Int64
	unsupported atomic.Int64
}

// Dispatcher turns an ACS request into the CPE response.
type Dispatcher struct {
	gateway Gateway
	hooks   Hooks
	now     func() time.Time
	methods []method
	stats   dispatcherStats
}

type DispatcherOption func(*Dispatcher)

// WithHooks sets the receiver of management server parameter changes.
func WithHooks(h Hooks) DispatcherOption {
	return func(d *Dispatcher) { d.hooks = h }
}

func NewDispatcher(gateway Gateway, options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		gateway: gateway,
		hooks:   nopHooks{},
		now:     time.Now,
	}

	d.methods = []method{
		{name: "GetRPCMethods", handler: d.getRPCMethods},
		{name: "GetParameterValues", handler: d.getParameterValues},
		{name: "SetParameterValues", handler: d.setParameterValues},
		{name: "SetParameterAttributes", handler: d.setParameterAttributes},
		{name: "Download", handler: d.download},
		{name: "FactoryReset", handler: d.factoryReset},
		{name: "Reboot", handler: d.reboot},
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

// Methods returns the names of the supported RPC methods.
func (d *Dispatcher) Methods() []string {
	res := make([]string, 0, len(d.methods))
	for _, m := range d.methods {
		res = append(res, m.name)
	}

	return res
}

func (d *Dispatcher) lookup(name string) (method, bool) {
	for _, m := range d.methods {
		if m.name == name {
			return m, true
		}
	}

	return method{}, false
}

// probe looks for any supported method element inside body.
func (d *Dispatcher) probe(ns soap.Namespaces, body *etree.Element) (method, *etree.Element, bool) {
	for _, m := range d.methods {
		if el := ns.Find(body, soap.CWMP, m.name); el != nil {
			return m, el, true
		}
	}

	return method{}, nil, false
}

// HandleMessage processes one ACS request and returns the response to POST
// next. Requests that cannot be served produce a SOAP Fault; only a message
// that cannot be understood at all results in an error.
func (d *Dispatcher) HandleMessage(ctx context.Context, data []byte) ([]byte, error) {
	doc, err := soap.Parse(data)
	if err != nil {
		return nil, err
	}

	root := doc.Root()
	ns := soap.RecreateNamespaces(root)

	if _, ok := ns.Prefix(soap.Envelope); !ok {
		return nil, fmt.Errorf("%w: SOAP envelope namespace is not declared", soap.ErrCodec)
	}

	cwmpPrefix, ok := ns.Prefix(soap.CWMP)
	if !ok {
		return nil, fmt.Errorf("%w: cwmp namespace is not declared", soap.ErrCodec)
	}

	var id string

	if el := ns.Find(root, soap.CWMP, "ID"); el != nil {
		if id = soap.Text(el); id == "" {
			return nil, fmt.Errorf("%w: empty cwmp:ID", soap.ErrCodec)
		}
	}

	resp, err := soap.NewResponse(id)
	if err != nil {
		return nil, err
	}

	body := ns.Find(root, soap.Envelope, "Body")
	if body == nil {
		return nil, fmt.Errorf("%w: Body not found", soap.ErrCodec)
	}

	children := body.ChildElements()
	if len(children) == 0 {
		return nil, fmt.Errorf("%w: empty Body", soap.ErrCodec)
	}

	req := children[0]
	if req.Space != cwmpPrefix {
		return nil, fmt.Errorf("%w: unexpected namespace of %s", soap.ErrCodec, req.FullTag())
	}

	m, ok := d.lookup(req.Tag)
	if !ok {
		m, req, ok = d.probe(ns, body)
	}

	if !ok {
		name := children[0].Tag

		log.Warn().Str("method", name).Msg("Unsupported RPC method")
		d.stats.unsupported.Add(1)
		resp.AddFault(true, soap.FaultMethodNotSupported, name+" not supported")

		return resp.Bytes()
	}

	log.Debug().Str("method", m.name).Str("id", id).Msg("Handling RPC")

	el, err := m.handler(ctx, req)

	switch {
	case err == nil:
		d.stats.handled.Add(1)
		resp.Attach(el)
	case errors.Is(err, ErrInvalidArguments):
		log.Warn().Err(err).Str("method", m.name).Msg("Invalid RPC arguments")
		d.stats.faults.Add(1)
		resp.AddFault(true, soap.FaultInvalidArguments, err.Error())
	case errors.Is(err, backend.ErrBackend):
		log.Error().Err(err).Str("method", m.name).Msg("RPC failed")
		d.stats.faults.Add(1)
		resp.AddFault(false, soap.FaultInternalError, "Internal error")
	default:
		return nil, fmt.Errorf("%s: %w", m.name, err)
	}

	return resp.Bytes()
}

// Stats returns the number of RPCs served, answered with a fault and
// rejected as unsupported.
func (d *Dispatcher) Stats() (handled, faults, unsupported int64) {
	return d.stats.handled.Load(), d.stats.faults.Load(), d.stats.unsupported.Load()
}
