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

package soap

import (
	"fmt"

	"github.com/beevik/etree"
)

// Fault codes used by the CPE.
const (
	FaultMethodNotSupported = "9000"
	FaultRequestDenied      = "9001"
	FaultInternalError      = "9002"
	FaultInvalidArguments   = "9003"
)

// Response is an outbound CWMP message. Elements created on it use the
// CPE's own prefixes (soap_env, soap_enc, xsd, xsi, cwmp).
type Response struct {
	doc  *etree.Document
	body *etree.Element
}

// NewResponse returns an empty response envelope. When id is empty the
// cwmp:ID header is omitted.
func NewResponse(id string) (*Response, error) {
	doc, err := loadTemplate("response.xml")
	if err != nil {
		return nil, err
	}

	root := doc.Root()

	hdr := FindLocal(root, "Header")
	body := FindLocal(root, "Body")

	if hdr == nil || body == nil {
		return nil, fmt.Errorf("%w: response template is incomplete", ErrCodec)
	}

	if id == "" {
		root.RemoveChild(hdr)
	} else if err := setText(hdr, "ID", id); err != nil {
		return nil, err
	}

	return &Response{doc: doc, body: body}, nil
}

// Body returns the soap_env:Body element.
func (r *Response) Body() *etree.Element {
	return r.body
}

// Attach appends el, typically a method response built detached, to the Body.
func (r *Response) Attach(el *etree.Element) {
	r.body.AddChild(el)
}

// AddFault appends a SOAP Fault carrying a CWMP fault code to the Body.
func (r *Response) AddFault(client bool, code, message string) {
	fault := r.body.CreateElement("soap_env:Fault")

	faultcode := "Server"
	if client {
		faultcode = "Client"
	}

	fault.CreateElement("faultcode").SetText(faultcode)
	fault.CreateElement("faultstring").SetText("CWMP fault")

	cwmpFault := fault.CreateElement("detail").CreateElement("cwmp:Fault")
	cwmpFault.CreateElement("FaultCode").SetText(code)
	cwmpFault.CreateElement("FaultString").SetText(message)
}

// Bytes serializes the response.
func (r *Response) Bytes() ([]byte, error) {
	return serialize(r.doc)
}
