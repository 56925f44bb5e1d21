package protocol

import (
	"fmt"
	"time"
)

const onvifEnvelope = "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\r\n" +
	"<s:Envelope xmlns:s=\"http://www.w3.org/2003/05/soap-envelope\">\r\n" +
	"  <s:Body>\r\n" +
	"    <GetSystemDateAndTime xmlns=\"http://www.onvif.org/ver10/device/wsdl\"/>\r\n" +
	"  </s:Body>\r\n" +
	"</s:Envelope>\r\n"

// StandardHandshake builds the 12 byte login packet stamped with t in local
// time: magic 5F 6F, two zero bytes, year-2000, month, day, hour, minute,
// second, 0x0B and a trailing zero.
func StandardHandshake(t time.Time) []byte {
	t = t.Local()
	return []byte{
		0x5F, 0x6F,
		0x00, 0x00,
		byte(t.Year() - 2000),
		byte(t.Month()),
		byte(t.Day()),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
		0x0B,
		0x00,
	}
}

// HTTPRequest builds the GET request for the camera's video CGI.
func HTTPRequest(host, path string) []byte {
	return []byte(fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\nConnection: keep-alive\r\n\r\n", path, host))
}

// RTSPOptions builds an OPTIONS request against rtsp://host:port/path.
func RTSPOptions(host string, port int, path string) []byte {
	return []byte(fmt.Sprintf("OPTIONS rtsp://%s:%d%s RTSP/1.0\r\nCSeq: 1\r\nUser-Agent: IP Camera Client\r\n\r\n", host, port, path))
}

// ONVIFEnvelope returns the GetSystemDateAndTime SOAP request.
func ONVIFEnvelope() []byte {
	return []byte(onvifEnvelope)
}

// Handshake builds the payload for v.
func Handshake(v Variant, cfg Config, host string, now time.Time) []byte {
	switch v.normalize() {
	case HTTP:
		return HTTPRequest(host, cfg.HTTPPath)
	case RTSP:
		return RTSPOptions(host, cfg.RTSPPort, cfg.RTSPPath)
	case ONVIF:
		return ONVIFEnvelope()
	default:
		return StandardHandshake(now)
	}
}
