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

// Namespace identifies one of the XML namespaces a CWMP message is made of.
type Namespace int

const (
	Envelope Namespace = iota
	Encoding
	XSD
	XSI
	CWMP
)

const (
	URIEnvelope = "http://schemas.xmlsoap.org/soap/envelope/"
	URIEncoding = "http://schemas.xmlsoap.org/soap/encoding/"
	URIXSD      = "http://www.w3.org/2001/XMLSchema"
	URIXSI      = "http://www.w3.org/2001/XMLSchema-instance"
)

// CWMPVersions lists the supported CWMP namespace URNs.
var CWMPVersions = []string{
	"urn:dslforum-org:cwmp-1-0",
	"urn:dslforum-org:cwmp-1-1",
	"urn:dslforum-org:cwmp-1-2",
}

func (n Namespace) String() string {
	switch n {
	case Envelope:
		return "soap-envelope"
	case Encoding:
		return "soap-encoding"
	case XSD:
		return "xsd"
	case XSI:
		return "xsi"
	case CWMP:
		return "cwmp"
	default:
		return fmt.Sprintf("namespace(%d)", int(n))
	}
}

func lookupURI(uri string) (Namespace, bool) {
	switch uri {
	case URIEnvelope:
		return Envelope, true
	case URIEncoding:
		return Encoding, true
	case URIXSD:
		return XSD, true
	case URIXSI:
		return XSI, true
	}

	for _, v := range CWMPVersions {
		if uri == v {
			return CWMP, true
		}
	}

	return 0, false
}

// Namespaces maps each known namespace to the prefix the peer bound it to.
// ACS implementations pick their own prefixes, so the mapping is derived
// again from every inbound message.
type Namespaces struct {
	prefixes map[Namespace]string
	urn      string
}

// RecreateNamespaces derives the prefix mapping from the xmlns attributes of
// root. Namespaces that root does not declare are left unbound.
func RecreateNamespaces(root *etree.Element) Namespaces {
	ns := Namespaces{prefixes: make(map[Namespace]string)}

	if root == nil {
		return ns
	}

	for _, attr := range root.Attr {
		var prefix string

		switch {
		case attr.Space == "xmlns":
			prefix = attr.Key
		case attr.Space == "" && attr.Key == "xmlns":
			prefix = ""
		default:
			continue
		}

		n, ok := lookupURI(attr.Value)
		if !ok {
			continue
		}

		if _, bound := ns.prefixes[n]; bound {
			continue
		}

		ns.prefixes[n] = prefix

		if n == CWMP {
			ns.urn = attr.Value
		}
	}

	return ns
}

// Prefix returns the prefix bound to n.
func (ns Namespaces) Prefix(n Namespace) (string, bool) {
	p, ok := ns.prefixes[n]
	return p, ok
}

// Version returns the CWMP URN declared by the message.
func (ns Namespaces) Version() string {
	return ns.urn
}

// Is reports whether el is the element local qualified by namespace n.
func (ns Namespaces) Is(el *etree.Element, n Namespace, local string) bool {
	p, ok := ns.prefixes[n]
	if !ok || el == nil {
		return false
	}

	return el.Space == p && el.Tag == local
}

// Find returns the first element below root, in document order, that is
// the element local qualified by namespace n.
func (ns Namespaces) Find(root *etree.Element, n Namespace, local string) *etree.Element {
	return walk(root, func(el *etree.Element) bool {
		return ns.Is(el, n, local)
	})
}
