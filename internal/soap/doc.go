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
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

var (
	// ErrCodec is returned when a message cannot be parsed or lacks a
	// mandatory element.
	ErrCodec = errors.New("malformed CWMP message")
	// ErrFault is returned when the ACS answered with a SOAP Fault.
	ErrFault = errors.New("ACS responded with a fault")
)

// Parse reads a CWMP message into an XML tree.
func Parse(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()

	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodec, err)
	}

	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: empty document", ErrCodec)
	}

	return doc, nil
}

// walk visits root and its descendants depth first and returns the first
// element for which match is true.
func walk(root *etree.Element, match func(*etree.Element) bool) *etree.Element {
	if root == nil {
		return nil
	}

	if match(root) {
		return root
	}

	for _, child := range root.ChildElements() {
		if el := walk(child, match); el != nil {
			return el
		}
	}

	return nil
}

// FindLocal returns the first element below root whose local name is local,
// regardless of its prefix.
func FindLocal(root *etree.Element, local string) *etree.Element {
	return walk(root, func(el *etree.Element) bool {
		return el.Tag == local
	})
}

// FindAllLocal returns every element below root whose local name is local,
// in document order.
func FindAllLocal(root *etree.Element, local string) []*etree.Element {
	var res []*etree.Element

	walk(root, func(el *etree.Element) bool {
		if el.Tag == local {
			res = append(res, el)
		}

		return false
	})

	return res
}

// Text returns the trimmed character data of el, or "" when el is nil.
func Text(el *etree.Element) string {
	if el == nil {
		return ""
	}

	return strings.TrimSpace(el.Text())
}

// ChildText returns the text of the first element below el named local.
func ChildText(el *etree.Element, local string) string {
	return Text(FindLocal(el, local))
}

// ParameterValue returns the Value element of the first ParameterValueStruct
// below root whose Name equals name.
func ParameterValue(root *etree.Element, name string) *etree.Element {
	for _, pvs := range FindAllLocal(root, "ParameterValueStruct") {
		if ChildText(pvs, "Name") == name {
			return FindLocal(pvs, "Value")
		}
	}

	return nil
}

// AppendParameterValue adds a ParameterValueStruct to list.
func AppendParameterValue(list *etree.Element, name, value string) {
	pvs := list.CreateElement("ParameterValueStruct")
	pvs.CreateElement("Name").SetText(name)
	pvs.CreateElement("Value").SetText(value)
}

// SetArrayType updates the soap_enc:arrayType attribute of list to reflect
// the number of its child elements.
func SetArrayType(list *etree.Element, itemType string) {
	list.CreateAttr("soap_enc:arrayType",
		fmt.Sprintf("cwmp:%s[%d]", itemType, len(list.ChildElements())))
}

func serialize(doc *etree.Document) ([]byte, error) {
	doc.Indent(2)

	data, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodec, err)
	}

	return data, nil
}
