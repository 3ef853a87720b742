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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cwmpd.io/cwmpd/internal/event"
)

const envelopeFormat = `<?xml version="1.0"?>
<%[1]s:Envelope xmlns:%[1]s="http://schemas.xmlsoap.org/soap/envelope/" xmlns:%[2]s="urn:dslforum-org:cwmp-1-%[3]d">
  <%[1]s:Header><%[2]s:ID %[1]s:mustUnderstand="1">42</%[2]s:ID></%[1]s:Header>
  <%[1]s:Body>%[4]s</%[1]s:Body>
</%[1]s:Envelope>`

type fakeReader map[string]string

func (f fakeReader) Get(_ context.Context, _, name string) (string, error) {
	v, ok := f[name]
	if !ok {
		return "", errors.New("boom")
	}

	return v, nil
}

func TestRecreateNamespaces(t *testing.T) {
	testcases := map[string]struct {
		in      string
		env     string
		cwmp    string
		version string
	}{
		"conventional prefixes": {
			in:      fmt.Sprintf(envelopeFormat, "soap-env", "cwmp", 0, ""),
			env:     "soap-env",
			cwmp:    "cwmp",
			version: "urn:dslforum-org:cwmp-1-0",
		},
		"custom prefixes": {
			in:      fmt.Sprintf(envelopeFormat, "SOAP-ENV", "ns1", 2, ""),
			env:     "SOAP-ENV",
			cwmp:    "ns1",
			version: "urn:dslforum-org:cwmp-1-2",
		},
	}

	for name, tc := range testcases {
		name := name
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			doc, err := Parse([]byte(tc.in))
			require.NoError(t, err)

			ns := RecreateNamespaces(doc.Root())

			env, ok := ns.Prefix(Envelope)
			require.True(t, ok)
			assert.Equal(t, tc.env, env)

			cwmp, ok := ns.Prefix(CWMP)
			require.True(t, ok)
			assert.Equal(t, tc.cwmp, cwmp)
			assert.Equal(t, tc.version, ns.Version())

			_, ok = ns.Prefix(XSD)
			assert.False(t, ok)

			id := ns.Find(doc.Root(), CWMP, "ID")
			require.NotNil(t, id)
			assert.Equal(t, "42", Text(id))
		})
	}
}

func TestRecreateNamespacesForgetsPrevious(t *testing.T) {
	first, err := Parse([]byte(fmt.Sprintf(envelopeFormat, "a", "b", 0, "")))
	require.NoError(t, err)

	ns := RecreateNamespaces(first.Root())
	p, _ := ns.Prefix(CWMP)
	assert.Equal(t, "b", p)

	second, err := Parse([]byte(`<x:Envelope xmlns:x="http://schemas.xmlsoap.org/soap/envelope/"/>`))
	require.NoError(t, err)

	ns = RecreateNamespaces(second.Root())
	p, _ = ns.Prefix(Envelope)
	assert.Equal(t, "x", p)

	_, ok := ns.Prefix(CWMP)
	assert.False(t, ok)
}

func TestBuildInform(t *testing.T) {
	reader := fakeReader{
		ParamExternalIPAddress:    "192.0.2.10",
		ParamConnectionRequestURL: "http://192.0.2.10:7547/",
	}

	in := Inform{
		ID:          "session-1",
		CurrentTime: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		RetryCount:  3,
		Device: Device{
			Manufacturer:     "ACME",
			OUI:              "001122",
			ProductClass:     "Router",
			SerialNumber:     "SN123",
			HardwareVersion:  "hw1",
			SoftwareVersion:  "sw1",
			ProvisioningCode: "PC",
		},
		Events: []event.Event{
			{Code: event.Periodic},
			{Code: event.ValueChange},
		},
		Notifications: []event.Notification{
			{Parameter: "InternetGatewayDevice.Foo", Value: "bar"},
		},
	}

	data, err := BuildInform(context.Background(), in, reader)
	require.NoError(t, err)

	doc, err := Parse(data)
	require.NoError(t, err)

	root := doc.Root()
	ns := RecreateNamespaces(root)
	assert.Equal(t, "urn:dslforum-org:cwmp-1-0", ns.Version())

	require.NotNil(t, ns.Find(root, CWMP, "Inform"))
	assert.Equal(t, "session-1", Text(ns.Find(root, CWMP, "ID")))
	assert.Equal(t, "3", ChildText(root, "RetryCount"))
	assert.Equal(t, "2024-01-02T03:04:05Z", ChildText(root, "CurrentTime"))
	assert.Equal(t, "SN123", ChildText(FindLocal(root, "DeviceId"), "SerialNumber"))

	codes := FindAllLocal(root, "EventCode")
	require.Len(t, codes, 2)
	assert.Equal(t, "2 PERIODIC", Text(codes[0]))
	assert.Equal(t, "4 VALUE CHANGE", Text(codes[1]))
	assert.Equal(t, "cwmp:EventStruct[2]",
		FindLocal(root, "Event").SelectAttrValue("soap_enc:arrayType", ""))

	assert.Equal(t, "192.0.2.10", Text(ParameterValue(root, ParamExternalIPAddress)))
	assert.Equal(t, "PC", Text(ParameterValue(root,
		"InternetGatewayDevice.DeviceInfo.ProvisioningCode")))
	assert.Equal(t, "bar", Text(ParameterValue(root, "InternetGatewayDevice.Foo")))
	assert.Equal(t, "cwmp:ParameterValueStruct[10]",
		FindLocal(root, "ParameterList").SelectAttrValue("soap_enc:arrayType", ""))
}

func TestBuildInformBackendError(t *testing.T) {
	_, err := BuildInform(context.Background(), Inform{}, fakeReader{})
	assert.EqualError(t, err, "reading "+ParamExternalIPAddress+": boom")
}

func TestParseInformResponse(t *testing.T) {
	testcases := map[string]struct {
		in    string
		err   error
		fault *FaultError
	}{
		"accepted": {
			in: fmt.Sprintf(envelopeFormat, "soapenv", "cwmp", 0,
				"<cwmp:InformResponse><MaxEnvelopes>1</MaxEnvelopes></cwmp:InformResponse>"),
		},
		"missing MaxEnvelopes": {
			in: fmt.Sprintf(envelopeFormat, "soapenv", "cwmp", 0,
				"<cwmp:InformResponse></cwmp:InformResponse>"),
			err: ErrCodec,
		},
		"empty MaxEnvelopes": {
			in: fmt.Sprintf(envelopeFormat, "soapenv", "cwmp", 0,
				"<cwmp:InformResponse><MaxEnvelopes/></cwmp:InformResponse>"),
			err: ErrCodec,
		},
		"fault": {
			in: fmt.Sprintf(envelopeFormat, "S", "cwmp", 1,
				`<S:Fault><faultcode>Server</faultcode><faultstring>CWMP fault</faultstring>
				<detail><cwmp:Fault><FaultCode>8005</FaultCode><FaultString>Retry request</FaultString></cwmp:Fault></detail>
				</S:Fault>`),
			err: ErrFault,
			fault: &FaultError{
				Code:        "Server",
				String:      "CWMP fault",
				CWMPCode:    "8005",
				CWMPMessage: "Retry request",
			},
		},
		"not XML": {
			in:  "HTTP/1.1 200 OK",
			err: ErrCodec,
		},
		"no envelope namespace": {
			in:  "<Envelope><MaxEnvelopes>1</MaxEnvelopes></Envelope>",
			err: ErrCodec,
		},
	}

	for name, tc := range testcases {
		name := name
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := ParseInformResponse([]byte(tc.in))
			if tc.err == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tc.err)

			if tc.fault != nil {
				var fault *FaultError
				require.ErrorAs(t, err, &fault)
				assert.Equal(t, tc.fault, fault)
			}
		})
	}
}

func TestResponseFault(t *testing.T) {
	resp, err := NewResponse("7")
	require.NoError(t, err)

	resp.AddFault(true, FaultMethodNotSupported, "Upload not supported")

	data, err := resp.Bytes()
	require.NoError(t, err)

	doc, err := Parse(data)
	require.NoError(t, err)

	root := doc.Root()
	ns := RecreateNamespaces(root)

	assert.Equal(t, "7", Text(ns.Find(root, CWMP, "ID")))

	fault := ns.Find(root, Envelope, "Fault")
	require.NotNil(t, fault)
	assert.Equal(t, &FaultError{
		Code:        "Client",
		String:      "CWMP fault",
		CWMPCode:    "9000",
		CWMPMessage: "Upload not supported",
	}, parseFault(fault))
}

func TestResponseWithoutID(t *testing.T) {
	resp, err := NewResponse("")
	require.NoError(t, err)

	data, err := resp.Bytes()
	require.NoError(t, err)

	doc, err := Parse(data)
	require.NoError(t, err)

	assert.Nil(t, FindLocal(doc.Root(), "Header"))
	assert.NotNil(t, FindLocal(doc.Root(), "Body"))
}
