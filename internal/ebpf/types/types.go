// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package types defines the shared kernel/user-space record layouts for
// Oryx: the fixed-size AppPacket record the classifier writes into the
// ring and user space reads back, the FilterState bitfields, and the
// block-map value triple. Every struct here must stay byte-identical to
// its C counterpart in internal/ebpf/programs/c/common.h — field order,
// widths, and padding are load-bearing, not cosmetic.
package types

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Direction identifies which TC hook captured a packet.
type Direction uint8

const (
	DirectionIngress Direction = 0
	DirectionEgress  Direction = 1
)

func (d Direction) String() string {
	if d == DirectionEgress {
		return "egress"
	}
	return "ingress"
}

// NetworkKind tags which variant of the network payload is populated.
type NetworkKind uint8

const (
	NetworkIPv4 NetworkKind = 0
	NetworkIPv6 NetworkKind = 1
	NetworkARP  NetworkKind = 2
)

// TransportKind tags which variant of the transport payload is populated.
type TransportKind uint8

const (
	TransportTCP     TransportKind = 0
	TransportUDP     TransportKind = 1
	TransportICMP    TransportKind = 2
	TransportICMPv6  TransportKind = 3
	TransportSCTP    TransportKind = 4
	TransportUnknown TransportKind = 5
)

// TCP flag bits, as carried in AppPacketRaw.TCPFlags.
const (
	TCPFlagFIN = 1 << 0
	TCPFlagSYN = 1 << 1
	TCPFlagRST = 1 << 2
	TCPFlagPSH = 1 << 3
	TCPFlagACK = 1 << 4
	TCPFlagURG = 1 << 5
)

// AppPacketRaw mirrors `struct app_packet` in common.h field for field.
// Fields not applicable to the active NetworkKind/TransportKind are left
// zeroed by the classifier (spec invariant: fixed layout, zeroed unused
// fields). This struct is read directly out of ring buffer bytes with
// encoding/binary — do not reorder fields or change widths without
// updating common.h and bumping the wire format.
type AppPacketRaw struct {
	Timestamp     uint64 // seconds since epoch; 0 from kernel, stamped by the ring consumer on dequeue
	Direction     uint8
	NetworkKind   uint8
	TransportKind uint8
	_             uint8 // padding to align PID
	PID           uint32 // egress only, 0 = unknown

	SrcMAC    [6]byte
	DstMAC    [6]byte
	EtherType uint16

	// Network fields, flattened union. IPv4 addresses occupy the first 4
	// bytes of the 16-byte fields; IPv6 uses all 16.
	SrcIP             [16]byte
	DstIP             [16]byte
	TTLOrHopLimit     uint8
	ProtocolOrNextHdr uint8
	_                 [2]byte // padding

	// ARP fields.
	ArpSenderHW [6]byte
	ArpSenderIP [4]byte
	ArpTargetHW [6]byte
	ArpTargetIP [4]byte
	ArpOp       uint16
	_           [4]byte // padding

	// Transport fields, flattened union.
	SPort                 uint16
	DPort                 uint16
	TCPFlags              uint8
	_                     uint8 // padding
	TCPSeq                uint32
	TCPAck                uint32
	TCPWindow             uint16
	UDPLength             uint16
	ICMPType              uint8
	ICMPCode              uint8
	SCTPVerificationTag   uint32
	UnknownProtocolNumber uint8
	_                     [3]byte // padding
}

// AppPacketRawSize is the wire size of AppPacketRaw. The ring consumer
// checks record length against this constant; on the C side common.h's
// _Static_assert pins struct app_packet to the same size.
const AppPacketRawSize = 120

// NetworkPayload is exactly one of Ipv4, Ipv6, or Arp.
type NetworkPayload struct {
	Kind NetworkKind

	Ipv4 *Ipv4Payload
	Ipv6 *Ipv6Payload
	Arp  *ArpPayload
}

type Ipv4Payload struct {
	Src       net.IP
	Dst       net.IP
	TTL       uint8
	Protocol  uint8
	Transport TransportPayload
}

type Ipv6Payload struct {
	Src       net.IP
	Dst       net.IP
	HopLimit  uint8
	NextHdr   uint8
	Transport TransportPayload
}

type ArpPayload struct {
	SenderHW net.HardwareAddr
	SenderIP net.IP
	TargetHW net.HardwareAddr
	TargetIP net.IP
	Op       uint16
}

// TransportPayload is exactly one of Tcp, Udp, Icmp, Icmpv6, Sctp, or Unknown.
type TransportPayload struct {
	Kind TransportKind

	Tcp     *TcpPayload
	Udp     *UdpPayload
	Icmp    *IcmpPayload
	Icmpv6  *IcmpPayload
	Sctp    *SctpPayload
	Unknown *UnknownPayload
}

type TcpPayload struct {
	SPort  uint16
	DPort  uint16
	Flags  uint8
	Seq    uint32
	Ack    uint32
	Window uint16
}

type UdpPayload struct {
	SPort  uint16
	DPort  uint16
	Length uint16
}

type IcmpPayload struct {
	Type uint8
	Code uint8
}

type SctpPayload struct {
	SPort           uint16
	DPort           uint16
	VerificationTag uint32
}

type UnknownPayload struct {
	ProtocolNumber uint8
}

// AppPacket is the decoded, ergonomic form of AppPacketRaw that the rest of
// user space works with. The ring consumer is the only place a raw record
// is turned into one of these.
type AppPacket struct {
	Timestamp uint64
	Direction Direction
	PID       uint32

	SrcMAC    net.HardwareAddr
	DstMAC    net.HardwareAddr
	EtherType uint16

	Network NetworkPayload
}

// LinkLayerFilterBit maps an EtherType to the bit FilterState.Link tests.
func LinkLayerFilterBit(ethertype uint16) uint32 {
	switch ethertype {
	case 0x0800: // IPv4
		return 1 << 0
	case 0x86DD: // IPv6
		return 1 << 1
	case 0x0806: // ARP
		return 1 << 2
	default:
		return 0
	}
}

// NetworkFilterBit maps a network kind to the bit FilterState.Network tests.
func NetworkFilterBit(kind NetworkKind) uint32 {
	switch kind {
	case NetworkIPv4:
		return 1 << 0
	case NetworkIPv6:
		return 1 << 1
	case NetworkARP:
		return 1 << 2
	default:
		return 0
	}
}

// TransportFilterBit maps a transport kind to the bit FilterState.Transport tests.
func TransportFilterBit(kind TransportKind) uint32 {
	switch kind {
	case TransportTCP:
		return 1 << 0
	case TransportUDP:
		return 1 << 1
	case TransportICMP:
		return 1 << 2
	case TransportICMPv6:
		return 1 << 3
	case TransportSCTP:
		return 1 << 4
	default:
		return 0
	}
}

// FilterState is the single-entry FILTERS map value: a set bit means
// "accept this protocol". An all-zero bitfield rejects all packets of that
// layer. Direction is a DirectionMask bitmask; 0 enables neither direction.
type FilterState struct {
	Transport uint32
	Network   uint32
	Link      uint32
	Direction uint32 // bitmask: bit0=ingress enabled, bit1=egress enabled
}

const (
	DirectionMaskIngress uint32 = 1 << 0
	DirectionMaskEgress  uint32 = 1 << 1
	DirectionMaskBoth    uint32 = DirectionMaskIngress | DirectionMaskEgress
)

// Allows reports whether dir is enabled under this FilterState.
func (f FilterState) Allows(dir Direction) bool {
	if dir == DirectionEgress {
		return f.Direction&DirectionMaskEgress != 0
	}
	return f.Direction&DirectionMaskIngress != 0
}

// BlockMaskV4Key is the BLOCKLIST_IPV4 map key: a 4-byte address.
type BlockMaskV4Key [4]byte

// BlockMaskV6Key is the BLOCKLIST_IPV6 map key: a 16-byte address.
type BlockMaskV6Key [16]byte

// ProtocolSet is a 256-bit set of IP protocol numbers — one bit per
// possible uint8 value, wide enough for SCTP (132) and ICMPv6 (58) alike.
// The zero value means "any protocol". Mirrors protocol_mask[4] in
// common.h's struct block_mask; a 32-bit bitmask cannot represent protocol
// numbers above 31 without shifting out of range, which is what this type
// replaces.
type ProtocolSet [4]uint64

// Add sets protocol's bit.
func (s *ProtocolSet) Add(protocol uint8) {
	s[protocol/64] |= 1 << (protocol % 64)
}

// Has reports whether protocol's bit is set.
func (s ProtocolSet) Has(protocol uint8) bool {
	return s[protocol/64]&(1<<(protocol%64)) != 0
}

// IsAny reports whether no protocol bit is set, i.e. every protocol is covered.
func (s ProtocolSet) IsAny() bool {
	return s == ProtocolSet{}
}

// Merge OR-merges other's bits into s, in place.
func (s *ProtocolSet) Merge(other ProtocolSet) {
	for i := range other {
		s[i] |= other[i]
	}
}

// BlockMask is the value stored for a blocked address: OR-merged masks
// from every enabled BlockRule targeting that address. port_mask only
// covers ports 0-63 — a rule naming a wider port is rejected at
// firewall.Controller.Add/Edit rather than silently widened to "any port".
// Field order matters: it is chosen so the natural (unpacked) layout the Go
// and C compilers each pick independently already agree byte-for-byte, the
// same contract common.h's struct block_mask documents.
type BlockMask struct {
	PortMask      uint64      // bit N set => port N is covered (ports 0-63 only)
	ProtocolMask  ProtocolSet // 256-bit set of covered IP protocol numbers; all-zero means "any protocol"
	DirectionMask uint32      // DirectionMaskIngress / DirectionMaskEgress / DirectionMaskBoth
	AnyPort       uint8       // non-zero if the rule has no port restriction
	_             [3]byte
}

// Covers reports whether this mask matches the given port/protocol/direction
// combination observed by the classifier.
func (m BlockMask) Covers(port uint16, protocol uint8, dir Direction) bool {
	dirBit := DirectionMaskIngress
	if dir == DirectionEgress {
		dirBit = DirectionMaskEgress
	}
	if m.DirectionMask&dirBit == 0 {
		return false
	}

	if !m.ProtocolMask.IsAny() && !m.ProtocolMask.Has(protocol) {
		return false
	}

	// port_mask only represents ports 0-63; a port at or above that can
	// never satisfy a specific-port rule, so it must not fall through to
	// "covered" just because it is out of the bitmask's range.
	if m.AnyPort == 0 {
		if port >= 64 || m.PortMask&(1<<port) == 0 {
			return false
		}
	}

	return true
}

// IPv4Key / IPv6Key convert net.IP into the exact map key layout; used by
// both the classifier-facing map writer and tests.
func IPv4Key(ip net.IP) (BlockMaskV4Key, error) {
	v4 := ip.To4()
	if v4 == nil {
		return BlockMaskV4Key{}, fmt.Errorf("not an IPv4 address: %s", ip)
	}
	var key BlockMaskV4Key
	copy(key[:], v4)
	return key, nil
}

func IPv6Key(ip net.IP) (BlockMaskV6Key, error) {
	v6 := ip.To16()
	if v6 == nil || ip.To4() != nil {
		return BlockMaskV6Key{}, fmt.Errorf("not an IPv6 address: %s", ip)
	}
	var key BlockMaskV6Key
	copy(key[:], v6)
	return key, nil
}

// byteOrder is the byte order the classifier writes ring records in
// (little-endian, matching bpfel target in the bpf2go go:generate directive).
var byteOrder = binary.LittleEndian

// ByteOrder exposes the shared byte order to the ring consumer decoder.
func ByteOrder() binary.ByteOrder { return byteOrder }
