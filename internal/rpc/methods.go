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
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
	humanize "github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"cwmpd.io/cwmpd/internal/soap"
)

func (d *Dispatcher) getRPCMethods(_ context.Context, _ *etree.Element) (*etree.Element, error) {
	resp := etree.NewElement("cwmp:GetRPCMethodsResponse")
	list := resp.CreateElement("MethodList")

	for _, name := range d.Methods() {
		list.CreateElement("string").SetText(name)
	}

	list.CreateAttr("soap_enc:arrayType", fmt.Sprintf("xsd:string[%d]", len(d.methods)))

	return resp, nil
}

func (d *Dispatcher) getParameterValues(ctx context.Context, req *etree.Element) (*etree.Element, error) {
	resp := etree.NewElement("cwmp:GetParameterValuesResponse")
	list := resp.CreateElement("ParameterList")

	for _, el := range soap.FindAllLocal(req, "string") {
		name := soap.Text(el)
		if name == "" {
			continue
		}

		value, err := d.gateway.Get(ctx, "value", name)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", name, err)
		}

		soap.AppendParameterValue(list, name, value)
	}

	soap.SetArrayType(list, "ParameterValueStruct")

	return resp, nil
}

type write struct {
	name  string
	value string
}

func (d *Dispatcher) queue(ctx context.Context, action string, writes []write) error {
	for _, w := range writes {
		if err := d.gateway.QueueWrite(ctx, action, w.name, w.value); err != nil {
			if derr := d.gateway.Discard(); derr != nil {
				log.Error().Err(derr).Msg("Failed to discard queued writes")
			}

			return fmt.Errorf("set %s: %w", w.name, err)
		}
	}

	return d.gateway.ExecuteWrites(ctx)
}

func (d *Dispatcher) setParameterValues(ctx context.Context, req *etree.Element) (*etree.Element, error) {
	var writes []write

	for _, pvs := range soap.FindAllLocal(req, "ParameterValueStruct") {
		name := soap.ChildText(pvs, "Name")
		if name == "" {
			return nil, fmt.Errorf("%w: ParameterValueStruct without Name", ErrInvalidArguments)
		}

		var value string
		if el := soap.FindLocal(pvs, "Value"); el != nil {
			value = el.Text()
		}

		writes = append(writes, write{name: name, value: value})
	}

	if err := d.queue(ctx, "value", writes); err != nil {
		return nil, err
	}

	for _, w := range writes {
		d.hooks.ParameterWritten(w.name, w.value)
	}

	d.hooks.Reload(ctx)

	resp := etree.NewElement("cwmp:SetParameterValuesResponse")
	resp.CreateElement("Status").SetText("1")

	return resp, nil
}

func (d *Dispatcher) setParameterAttributes(ctx context.Context, req *etree.Element) (*etree.Element, error) {
	var writes []write

	for _, s := range soap.FindAllLocal(req, "SetParameterAttributesStruct") {
		switch soap.ChildText(s, "NotificationChange") {
		case "1", "true":
		default:
			continue
		}

		name := soap.ChildText(s, "Name")
		if name == "" {
			return nil, fmt.Errorf("%w: SetParameterAttributesStruct without Name",
				ErrInvalidArguments)
		}

		writes = append(writes, write{name: name, value: soap.ChildText(s, "Notification")})
	}

	if err := d.queue(ctx, "notification", writes); err != nil {
		return nil, err
	}

	d.hooks.Reload(ctx)

	return etree.NewElement("cwmp:SetParameterAttributesResponse"), nil
}

func (d *Dispatcher) download(ctx context.Context, req *etree.Element) (*etree.Element, error) {
	url := soap.ChildText(req, "URL")
	size := soap.ChildText(req, "FileSize")

	if url == "" || size == "" {
		return nil, fmt.Errorf("%w: Download requires URL and FileSize", ErrInvalidArguments)
	}

	started := d.now()
	status := "0"

	event := log.Info().Str("url", url)
	if n, err := strconv.ParseUint(size, 10, 64); err == nil {
		event = event.Str("size", humanize.Bytes(n))
	}

	event.Msg("Starting download")

	if err := d.gateway.RunDownload(ctx, url, size); err != nil {
		log.Error().Err(err).Str("url", url).Msg("Download failed")

		status = "9000"
	}

	resp := etree.NewElement("cwmp:DownloadResponse")
	resp.CreateElement("Status").SetText(status)
	resp.CreateElement("StartTime").SetText(started.Format(time.RFC3339))
	resp.CreateElement("CompleteTime").SetText(started.Format(time.RFC3339))

	return resp, nil
}

func (d *Dispatcher) factoryReset(ctx context.Context, _ *etree.Element) (*etree.Element, error) {
	if err := d.gateway.RunSimpleAction(ctx, "factory_reset"); err != nil {
		return nil, err
	}

	return etree.NewElement("cwmp:FactoryResetResponse"), nil
}

func (d *Dispatcher) reboot(ctx context.Context, _ *etree.Element) (*etree.Element, error) {
	if err := d.gateway.RunSimpleAction(ctx, "reboot"); err != nil {
		return nil, err
	}

	return etree.NewElement("cwmp:RebootResponse"), nil
}
