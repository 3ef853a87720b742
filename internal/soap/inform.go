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
	"context"
	"embed"
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"cwmpd.io/cwmpd/internal/event"
)

//go:embed templates/*.xml
var templatesFS embed.FS

// Device is the identity a CPE reports in every Inform.
type Device struct {
	Manufacturer     string
	OUI              string
	ProductClass     string
	SerialNumber     string
	HardwareVersion  string
	SoftwareVersion  string
	ProvisioningCode string
}

// Inform holds everything needed to render an Inform request.
type Inform struct {
	CurrentTime   time.Time
	ID            string
	Device        Device
	Events        []event.Event
	Notifications []event.Notification
	RetryCount    int
}

// ParameterReader resolves parameter values that are not part of the
// device identity.
type ParameterReader interface {
	Get(ctx context.Context, action, name string) (string, error)
}

func loadTemplate(name string) (*etree.Document, error) {
	data, err := templatesFS.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodec, err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: template %s: %w", ErrCodec, name, err)
	}

	return doc, nil
}

func setText(root *etree.Element, local, value string) error {
	el := FindLocal(root, local)
	if el == nil {
		return fmt.Errorf("%w: element %s not found", ErrCodec, local)
	}

	el.SetText(value)

	return nil
}

func setParameter(root *etree.Element, name, value string) error {
	el := ParameterValue(root, name)
	if el == nil {
		return fmt.Errorf("%w: parameter %s not found", ErrCodec, name)
	}

	el.SetText(value)

	return nil
}

// BuildInform renders the Inform request. Values that live outside of the
// device identity are read through reader.
func BuildInform(ctx context.Context, in Inform, reader ParameterReader) ([]byte, error) {
	doc, err := loadTemplate("inform.xml")
	if err != nil {
		return nil, err
	}

	root := doc.Root()

	if in.ID == "" {
		if hdr := FindLocal(root, "Header"); hdr != nil {
			hdr.RemoveChild(FindLocal(hdr, "ID"))
		}
	} else if err := setText(root, "ID", in.ID); err != nil {
		return nil, err
	}

	d := in.Device

	for _, field := range []struct{ local, value string }{
		{"Manufacturer", d.Manufacturer},
		{"OUI", d.OUI},
		{"ProductClass", d.ProductClass},
		{"SerialNumber", d.SerialNumber},
		{"RetryCount", strconv.Itoa(in.RetryCount)},
		{"CurrentTime", in.CurrentTime.Format(time.RFC3339)},
	} {
		if err := setText(root, field.local, field.value); err != nil {
			return nil, err
		}
	}

	events := FindLocal(root, "Event")
	if events == nil {
		return nil, fmt.Errorf("%w: element Event not found", ErrCodec)
	}

	for _, e := range in.Events {
		es := events.CreateElement("EventStruct")
		es.CreateElement("EventCode").SetText(e.Code.String())
		es.CreateElement("CommandKey").SetText(e.Key)
	}

	SetArrayType(events, "EventStruct")

	for _, p := range []struct{ name, value string }{
		{"InternetGatewayDevice.DeviceInfo.Manufacturer", d.Manufacturer},
		{"InternetGatewayDevice.DeviceInfo.ManufacturerOUI", d.OUI},
		{"InternetGatewayDevice.DeviceInfo.ProductClass", d.ProductClass},
		{"InternetGatewayDevice.DeviceInfo.SerialNumber", d.SerialNumber},
		{"InternetGatewayDevice.DeviceInfo.HardwareVersion", d.HardwareVersion},
		{"InternetGatewayDevice.DeviceInfo.SoftwareVersion", d.SoftwareVersion},
		{"InternetGatewayDevice.DeviceInfo.ProvisioningCode", d.ProvisioningCode},
	} {
		if err := setParameter(root, p.name, p.value); err != nil {
			return nil, err
		}
	}

	for _, name := range []string{ParamExternalIPAddress, ParamConnectionRequestURL} {
		value, err := reader.Get(ctx, "value", name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}

		if err := setParameter(root, name, value); err != nil {
			return nil, err
		}
	}

	list := FindLocal(root, "ParameterList")
	if list == nil {
		return nil, fmt.Errorf("%w: element ParameterList not found", ErrCodec)
	}

	for _, n := range in.Notifications {
		AppendParameterValue(list, n.Parameter, n.Value)
	}

	SetArrayType(list, "ParameterValueStruct")

	return serialize(doc)
}

// FaultError describes a SOAP Fault received from the ACS.
type FaultError struct {
	Code        string
	String      string
	CWMPCode    string
	CWMPMessage string
}

func (e *FaultError) Error() string {
	if e.CWMPCode != "" {
		return fmt.Sprintf("%s: %s (%s %s)", e.Code, e.String, e.CWMPCode, e.CWMPMessage)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.String)
}

// Is makes errors.Is(err, ErrFault) match.
func (e *FaultError) Is(target error) bool {
	return target == ErrFault
}

func parseFault(fault *etree.Element) *FaultError {
	res := &FaultError{
		Code:   ChildText(fault, "faultcode"),
		String: ChildText(fault, "faultstring"),
	}

	if detail := FindLocal(fault, "detail"); detail != nil {
		res.CWMPCode = ChildText(detail, "FaultCode")
		res.CWMPMessage = ChildText(detail, "FaultString")
	}

	return res
}

// ParseInformResponse validates the ACS answer to an Inform. A SOAP Fault
// yields a *FaultError; a response without MaxEnvelopes is malformed.
func ParseInformResponse(data []byte) error {
	doc, err := Parse(data)
	if err != nil {
		return err
	}

	root := doc.Root()
	ns := RecreateNamespaces(root)

	if _, ok := ns.Prefix(Envelope); !ok {
		return fmt.Errorf("%w: SOAP envelope namespace is not declared", ErrCodec)
	}

	if fault := ns.Find(root, Envelope, "Fault"); fault != nil {
		return parseFault(fault)
	}

	if ChildText(root, "MaxEnvelopes") == "" {
		return fmt.Errorf("%w: MaxEnvelopes is missing", ErrCodec)
	}

	return nil
}
