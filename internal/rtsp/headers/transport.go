// Package headers decodes and encodes the RTSP headers this server
// interprets beyond the generic map (Transport, Session).
package headers

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/streamcenter/streamcenter/internal/rtsp/base"
)

// TransportProtocol is the lower-layer transport of an RTP/RTCP stream.
type TransportProtocol int

const (
	TransportProtocolUDP TransportProtocol = iota
	TransportProtocolTCP
)

// TransportDelivery is unicast vs multicast delivery.
type TransportDelivery int

const (
	TransportDeliveryUnicast TransportDelivery = iota
	TransportDeliveryMulticast
)

// TransportMode is the SETUP request's declared direction.
type TransportMode int

const (
	TransportModePlay TransportMode = iota
	TransportModeRecord
)

// Transport is one entry of a Transport header.
type Transport struct {
	Protocol       TransportProtocol
	Delivery       *TransportDelivery
	Source         *net.IP
	Destination    *net.IP
	InterleavedIDs *[2]int
	ClientPorts    *[2]int
	ServerPorts    *[2]int
	SSRC           *uint32
	Mode           *TransportMode
}

func parsePorts(val string) (*[2]int, error) {
	parts := strings.Split(val, "-")
	switch len(parts) {
	case 1:
		p, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("rtsp transport: invalid port %q", val)
		}
		return &[2]int{p, p + 1}, nil
	case 2:
		p1, err1 := strconv.Atoi(parts[0])
		p2, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("rtsp transport: invalid ports %q", val)
		}
		return &[2]int{p1, p2}, nil
	default:
		return nil, fmt.Errorf("rtsp transport: invalid ports %q", val)
	}
}

// Unmarshal decodes a single Transport entry's semicolon-separated
// key[=value] list.
func (h *Transport) Unmarshal(s string) error {
	protocolFound := false

	for _, kv := range strings.Split(s, ";") {
		kv = strings.TrimSpace(kv)
		k, v, _ := strings.Cut(kv, "=")

		switch k {
		case "RTP/AVP", "RTP/AVP/UDP":
			h.Protocol = TransportProtocolUDP
			protocolFound = true
		case "RTP/AVP/TCP":
			h.Protocol = TransportProtocolTCP
			protocolFound = true

		case "unicast":
			d := TransportDeliveryUnicast
			h.Delivery = &d
		case "multicast":
			d := TransportDeliveryMulticast
			h.Delivery = &d

		case "source":
			if ip := net.ParseIP(v); ip != nil {
				h.Source = &ip
			}
		case "destination":
			if ip := net.ParseIP(v); ip != nil {
				h.Destination = &ip
			}

		case "interleaved":
			ports, err := parsePorts(v)
			if err != nil {
				return err
			}
			h.InterleavedIDs = ports

		case "client_port":
			ports, err := parsePorts(v)
			if err != nil {
				return err
			}
			h.ClientPorts = ports

		case "server_port":
			ports, err := parsePorts(v)
			if err != nil {
				return err
			}
			h.ServerPorts = ports

		case "ssrc":
			v = strings.TrimLeft(v, " ")
			if len(v)%2 != 0 {
				v = "0" + v
			}
			raw, err := hex.DecodeString(v)
			if err != nil || len(raw) > 4 {
				return fmt.Errorf("rtsp transport: invalid ssrc %q", v)
			}
			var buf [4]byte
			copy(buf[4-len(raw):], raw)
			ssrc := binary.BigEndian.Uint32(buf[:])
			h.SSRC = &ssrc

		case "mode":
			mode := strings.Trim(strings.ToLower(v), `"`)
			switch mode {
			case "play":
				m := TransportModePlay
				h.Mode = &m
			case "record", "receive":
				m := TransportModeRecord
				h.Mode = &m
			default:
				return fmt.Errorf("rtsp transport: invalid mode %q", mode)
			}

		default:
			// RTCP-mux, setup=, connection=, ttl= and any other key this
			// server doesn't act on.
		}
	}

	if !protocolFound {
		return fmt.Errorf("rtsp transport: protocol not found in %q", s)
	}
	return nil
}

// Marshal encodes one Transport entry.
func (h Transport) Marshal() string {
	var parts []string

	if h.Protocol == TransportProtocolUDP {
		parts = append(parts, "RTP/AVP")
	} else {
		parts = append(parts, "RTP/AVP/TCP")
	}
	if h.Delivery != nil {
		if *h.Delivery == TransportDeliveryUnicast {
			parts = append(parts, "unicast")
		} else {
			parts = append(parts, "multicast")
		}
	}
	if h.InterleavedIDs != nil {
		parts = append(parts, fmt.Sprintf("interleaved=%d-%d", h.InterleavedIDs[0], h.InterleavedIDs[1]))
	}
	if h.ClientPorts != nil {
		parts = append(parts, fmt.Sprintf("client_port=%d-%d", h.ClientPorts[0], h.ClientPorts[1]))
	}
	if h.ServerPorts != nil {
		parts = append(parts, fmt.Sprintf("server_port=%d-%d", h.ServerPorts[0], h.ServerPorts[1]))
	}
	if h.SSRC != nil {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], *h.SSRC)
		parts = append(parts, "ssrc="+strings.ToUpper(hex.EncodeToString(buf[:])))
	}
	if h.Mode != nil {
		if *h.Mode == TransportModePlay {
			parts = append(parts, "mode=play")
		} else {
			parts = append(parts, "mode=record")
		}
	}

	return strings.Join(parts, ";")
}

// ReadTransport decodes a Transport header, which RFC 2326 §12.39 allows to
// carry a comma-separated list of alternatives; this server only ever acts
// on the first.
func ReadTransport(v base.HeaderValue) (*Transport, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("rtsp transport: header not provided")
	}
	first, _, _ := strings.Cut(v[0], ",")
	var t Transport
	if err := t.Unmarshal(strings.TrimSpace(first)); err != nil {
		return nil, err
	}
	return &t, nil
}
